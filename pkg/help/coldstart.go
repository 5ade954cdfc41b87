package help

const ColdstartYAML = `# persona-ingest Quick Start

commands:
  ingest_site: |
    persona-ingest ingest --url "https://example.com" --owner alice
    persona-ingest ingest --url "https://example.com/blog" --owner alice --max-pages 20 --format json

  crawl_status: |
    persona-ingest status

  list_assets: |
    persona-ingest assets list --owner alice
    persona-ingest assets show <asset_id>

  upload_file: |
    persona-ingest assets add --owner alice --file notes.txt
    persona-ingest assets add --owner alice --file photo.png --move

  delete_asset: |
    persona-ingest assets delete <asset_id>

  job_history: |
    persona-ingest jobs list --owner alice
    persona-ingest jobs show            # latest job
    persona-ingest jobs show <job_id>

  http_api: |
    persona-ingest serve --addr 127.0.0.1:8080
    curl -X POST localhost:8080/api/ingest -d '{"url":"https://example.com","ownerId":"alice"}'
    curl localhost:8080/api/ingest/status
    curl "localhost:8080/api/assets?ownerId=alice"
    curl -F ownerId=alice -F file=@notes.txt localhost:8080/api/assets

key_files:
  - "data/assets.json (asset registry, guarded by data/assets.json.lock)"
  - "data/uploads/<owner>/<name>_<id><ext> (stored files)"
  - "data/crawl_status.json (current or last crawl job)"
  - "data/ingest.db (job history)"

crawl_rules:
  - "One crawl job at a time per process"
  - "Same-site links only, visited at most once, page budget 50 by default"
  - "Images downloaded after the page crawl, 5 at a time"
  - "Failed pages and images are counted, never fatal"

config:
  file: "persona-ingest.yaml (optional, --config to override)"
  env_prefix: "PERSONA_ (e.g. PERSONA_CRAWL_MAX_PAGES=10)"
`
