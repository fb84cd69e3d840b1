// Command harvester collects plastics-treaty submissions from the negotiating
// session pages and writes one normalized snapshot per session.
//
// Architecture overview:
//   - Fetch: the Colly fetcher retrieves index pages over a spoofed TLS fingerprint with per-host rate limiting and
//     jittered retries. A challenge detector promotes bot-wall responses to the chromedp fetcher, and a badger page
//     cache can sit in front of both.
//   - Extract: goquery walks accordion groups, headings and contact-group sub-pages to produce raw candidates, one per
//     document link.
//   - Parse & normalize: one field parser per page-layout revision turns candidates into typed metadata; the taxonomy
//     normalizer links authors, coalitions, topics and key elements. Unparseable candidates are counted and skipped.
//   - Snapshot: records are deduplicated by href (first seen wins) and written as JSON to the configured BlobStore
//     (local/memory/GCS/S3) with a SHA-256 digest. Each run is recorded in memory and optionally in Postgres.
//   - Sync: snapshots are pushed to the records service, PDFs uploaded, and index tasks published to Pub/Sub.
//
// Commands:
//   - run [session...]     harvest once.
//   - serve                harvest on a schedule; serve /healthz, /readyz, /metrics and the /v1 ops API.
//   - verify [session...]  audit written snapshots against the taxonomy.
//   - sync <session>       push a snapshot to the records service.
//
// Configuration comes from an optional YAML file (--config) overlaid by HARVESTER_* environment variables, e.g.
// HARVESTER_STORAGE_BACKEND=gcs. Logs are structured zap JSON unless logging.development is set.
package main
