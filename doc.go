// Newsense Analyst - Natural-Language Analytics over the Newsense Data API
//
// Newsense Analyst answers free-text questions about operational data. A
// question is matched against a curated knowledge graph to produce a
// structured query, the data is fetched from the external Newsense API and
// normalized into a uniform tabular shape, and the result is returned as a
// chart specification plus an AI-generated analysis grounded in the fetched
// data.
//
// # Packages
//
//   - kg: knowledge graph store with ranked term lookup and copy-on-reload
//   - resolver: free text -> structured query
//   - newsense: data API client, chunked concurrent fetching, normalization
//   - chart: pure chart spec builder
//   - analysis: grounded model-backed analysis with response validation
//   - adapter: OpenAI-compatible backend for the analysis model
//   - pipeline: per-turn orchestration producing the final Answer
//   - server: HTTP boundary for the UI and knowledge-graph editing layers
//
// # Quick Start
//
//	store, err := kg.LoadFile("knowledge_graph.csv")
//	if err != nil {
//		panic(err)
//	}
//
//	client, _ := newsense.NewClient(
//		newsense.WithBaseURL("https://newsense.example.com"),
//		newsense.WithCredentials("user", "pass"),
//	)
//	fetcher := newsense.NewFetcher(client, newsense.DefaultFetcherConfig(), nil)
//
//	model := adapter.NewOpenAIChat(apiKey, "", "gpt-4o-mini")
//	generator := analysis.NewGenerator(model, analysis.DefaultConfig(), nil)
//
//	orch := pipeline.NewOrchestrator(
//		resolver.New(store, resolver.Config{}), fetcher, generator, nil)
//
//	answer, err := orch.Run(ctx, "show revenue for store A last week")
package analyst
