/*
Package config provides configuration for the extraction pipeline.

Config wraps a map[string]any with typed accessor methods that handle
missing keys and type mismatches by returning default values, so values
loaded from YAML or JSON can be read without verbose type assertions.

Pipeline is the typed run configuration. Build one directly, or derive
it from a loaded file:

	cfg, err := config.FromFile("textkg.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	pipe := config.PipelineFrom(cfg)
	if err := pipe.Validate(); err != nil {
	    log.Fatal(err)
	}

Config is safe for concurrent reads; the underlying map is not modified
after creation.
*/
package config
