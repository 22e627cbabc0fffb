/*
Package textkg extracts knowledge graphs from unstructured text using a
generation model.

The pipeline chunks documents, sends each chunk to the model with an
extraction prompt, recovers a structured payload from the (possibly
noisy or truncated) output, merges the per-chunk payloads, and
validates the merged graph against the identifier grammar and
referential rules. Results stream back per document as soon as each
document completes.

# Basic Usage

	client := llm.NewOpenAI(os.Getenv("OPENAI_API_KEY"))
	pipe, err := textkg.New(client,
	    textkg.WithLogger(slog.Default()),
	)
	if err != nil {
	    log.Fatal(err)
	}

	docs := []schedule.Document{
	    {Name: "report.txt", Path: "corpus/report.txt"},
	}
	for output := range pipe.ProcessDocuments(ctx, docs) {
	    if output.Err != nil {
	        log.Printf("%s failed: %v", output.Doc.Name, output.Err)
	        continue
	    }
	    fmt.Printf("%s: %d entities, %d states, %d relations\n",
	        output.Doc.Name,
	        len(output.Graph.Entities),
	        len(output.Graph.States),
	        len(output.Graph.Relations))
	}

# Subpackages

  - graph: graph model, identifier grammar, validation, merging
  - recovery: structured payload recovery from noisy model output
  - schedule: cross-document streaming scheduler
  - llm: generation client interface, OpenAI-compatible implementation
  - errors: error taxonomy and retry machinery
  - config: run configuration
  - observability: structured logging, metrics, tracing
  - store: persistent result storage for resumable runs
*/
package textkg
