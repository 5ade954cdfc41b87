package analytics

import (
	"strings"
	"unicode"
)

// minWordLength drops short tokens (articles, initials, list markers).
const minWordLength = 3

type Analytics struct{}

// stopwords are ignored in frequency analysis. The list covers common English
// function words plus navigation noise that survives page pruning.
var stopwords = func() map[string]struct{} {
	words := strings.Fields(`
about above after again against all also although always among and another any anyone
anything are around because been before being below between both but can cannot could
did does doing done down during each either else enough even ever every everyone
everything few for from further had has have having her here hers herself him himself
his how however into its itself just last least less like made make many may maybe
might mine more most much must myself neither never next nobody none nor not nothing
now off often once one only other others our ours ourselves out over own per perhaps
rather same she should since some something still such than that the their theirs them
themselves then there therefore these they this those though through thus too toward
under until upon very was were what whatever when where whether which while who whom
whose why will with within without would yet you your yours yourself yourselves
aren't can't couldn't didn't doesn't don't hadn't hasn't haven't isn't it's let's
mustn't shouldn't wasn't weren't won't wouldn't you're you've we're we've they're
click button link menu page pages website site home homepage search loading read
more share cookie cookies privacy skip content login sign subscribe newsletter
`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword checks if a word is a common stopword that should be filtered out.
func IsStopword(word string) bool {
	_, exists := stopwords[strings.ToLower(word)]
	return exists
}

// WordFrequency counts lowercased words, ignoring stopwords, numbers and
// tokens shorter than three letters.
func (a *Analytics) WordFrequency(text string) map[string]int {
	frequencies := make(map[string]int)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(word)) < minWordLength || isNumber(word) {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		frequencies[word]++
	}

	return frequencies
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
