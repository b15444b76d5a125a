// Package memvec is a local-first retrieval-augmented memory engine for
// autonomous agents.
//
// Memvec persists (owner, timestamp, text, metadata, vector) records in an
// embedded SQLite store, retrieves candidates through a hand-built IVF
// (inverted-file) index, and ranks them with a hybrid scorer combining cosine
// similarity, optional TF-IDF lexical overlap, exponential time decay, and a
// short-horizon freshness boost.
//
// Texts are embedded through a pluggable provider chain: a remote HTTP
// backend (Ollama-compatible) with strict timeout discipline, falling back to
// a deterministic feature-hash embedder so ingestion never blocks on an
// unreachable model server.
//
// # Quick Start
//
//	ctx := context.Background()
//	eng, err := memvec.New("./data")
//	if err != nil {
//	    panic(err)
//	}
//	defer eng.Close()
//
//	id, err := eng.Add(ctx, "agent-1", "the deploy runbook lives in ops/deploy.md", nil)
//
//	hits, err := eng.Query("agent-1", "where is the deploy runbook?").
//	    TopK(5).
//	    Decay(0.01).
//	    Execute(ctx)
//
// Prompt assembly can use the pre-formatted block directly:
//
//	block, err := eng.InjectForPrompt(ctx, "agent-1", "deploy runbook")
//
// # Index Maintenance
//
// New records become searchable immediately via incremental insert into the
// nearest existing centroid. Centroid quality degrades as records accumulate;
// call MaybeRebuild periodically (or Build explicitly) to recluster:
//
//	rebuilt, err := eng.MaybeRebuild(ctx, "agent-1")
//
// The SQLite store is the single source of truth. Index blobs are derived
// state, safe to delete and rebuild at any time.
package memvec
