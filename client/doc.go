// Package client provides a single Generator and Embedder over every
// supported provider.
//
// The provider is inferred from the model identifier ("claude-*" is
// Anthropic, "gpt-*" and "o*" are OpenAI, "gemini-*" is Google) and its SDK
// client is created on first use:
//
//	c := client.New(client.Config{
//	    APIKeys:  client.APIKeys{OpenAI: os.Getenv("OPENAI_API_KEY")},
//	    Defaults: client.Defaults{Chat: "gpt-5-mini", Embedding: "text-embedding-3-small"},
//	})
//
//	coord, err := agent.New(c, agent.FromCatalog(catalog))
//
// Switching models per request routes to another provider:
//
//	coord.SendMessage(ctx, "hi", toolflow.WithModel("claude-sonnet-4-5"))
package client
