package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/persona-ingest/internal/app"
	"github.com/dtnitsch/persona-ingest/internal/common"
	"github.com/dtnitsch/persona-ingest/models"
	assetspkg "github.com/dtnitsch/persona-ingest/pkg/assets"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

// previewRunes bounds the extracted content shown by `assets show`.
const previewRunes = 600

func ListAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	list, err := a.Assets.List(c.String("owner"))
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	handled, err := common.WriteStructured(os.Stdout, c.String("format"), list)
	if handled || err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No assets found")
		return nil
	}
	PrintTable(os.Stdout, list)
	fmt.Printf("\nTotal: %d assets\n", len(list))
	return nil
}

// PrintTable writes one line per asset.
func PrintTable(w io.Writer, list []models.Asset) {
	fmt.Fprintf(w, "%-36s %-6s %-12s %-9s %-16s %-7s %s\n",
		"ID", "Type", "Owner", "Size", "Created", "Source", "Name")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, asset := range list {
		created := "unknown"
		if ts := asset.CreatedAt(); ts.Unix() > 0 {
			created = humanize.Time(ts)
		}
		fmt.Fprintf(w, "%-36s %-6s %-12s %-9s %-16s %-7s %s\n",
			asset.ID,
			asset.Type(),
			truncate(asset.OwnerID, 12),
			humanize.Bytes(uint64(max(asset.SizeBytes, 0))),
			created,
			asset.MetaString(models.MetaSource),
			asset.OriginalName,
		)
	}
}

func ShowAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("Error: asset id required\n\nUsage:\n  persona-ingest assets show <id>", 1)
	}
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	id := c.Args().First()
	asset, ok, err := a.Assets.Get(id)
	if err != nil {
		return fmt.Errorf("failed to read registry: %w", err)
	}
	if !ok {
		return cli.Exit(fmt.Sprintf("Asset %s not found", id), 1)
	}

	handled, err := common.WriteStructured(os.Stdout, c.String("format"), asset)
	if handled || err != nil {
		return err
	}
	PrintAsset(os.Stdout, asset, a.Store.AbsPath(asset.StoredRelativePath))
	return nil
}

// PrintAsset writes the asset record with a preview of its content.
func PrintAsset(w io.Writer, asset models.Asset, absPath string) {
	fmt.Fprintf(w, "ID:        %s\n", asset.ID)
	fmt.Fprintf(w, "Owner:     %s\n", asset.OwnerID)
	fmt.Fprintf(w, "Name:      %s\n", asset.OriginalName)
	fmt.Fprintf(w, "Type:      %s (%s)\n", asset.Type(), asset.MimeType)
	fmt.Fprintf(w, "Size:      %s\n", humanize.Bytes(uint64(max(asset.SizeBytes, 0))))
	fmt.Fprintf(w, "File:      %s\n", absPath)
	if ts := asset.CreatedAt(); ts.Unix() > 0 {
		fmt.Fprintf(w, "Created:   %s (%s)\n", ts.Format("2006-01-02 15:04:05"), humanize.Time(ts))
	}
	for _, key := range []string{models.MetaSource, models.MetaSourceURL, models.MetaSourcePage, models.MetaTitle, models.MetaLanguage, models.MetaDomainType} {
		if v := asset.MetaString(key); v != "" {
			fmt.Fprintf(w, "%-10s %s\n", key+":", v)
		}
	}
	fmt.Fprintf(w, "\nContent (%d chars):\n%s\n", asset.ExtractedContentLength, truncate(asset.ExtractedContent, previewRunes))
}

func DeleteAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("Error: asset id required\n\nUsage:\n  persona-ingest assets delete <id>", 1)
	}
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	id := c.Args().First()
	ok, err := a.Assets.Delete(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if !ok {
		return cli.Exit(fmt.Sprintf("Asset %s not found", id), 1)
	}
	fmt.Printf("Deleted asset %s\n", id)
	return nil
}

// AddAction commits a local file for an owner. The file is copied unless
// --move is set.
func AddAction(c *cli.Context) error {
	path := c.String("file")
	if path == "" || c.String("owner") == "" {
		return cli.Exit("Error: --file and --owner are required\n\nUsage:\n  persona-ingest assets add --owner alice --file notes.txt", 1)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	asset, err := a.Assets.Commit(c.Context, assetspkg.CommitRequest{
		OwnerID:      c.String("owner"),
		OriginalName: filepath.Base(path),
		MimeType:     c.String("mime-type"),
		Source:       storage.File{Path: path, Keep: !c.Bool("move")},
		Metadata:     map[string]any{models.MetaSource: models.SourceUpload},
	})
	if err != nil {
		return err
	}

	handled, err := common.WriteStructured(os.Stdout, c.String("format"), asset)
	if handled || err != nil {
		return err
	}
	fmt.Printf("Added %s as %s (%s, %s)\n", asset.OriginalName, asset.ID, asset.MimeType, humanize.Bytes(uint64(max(asset.SizeBytes, 0))))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
