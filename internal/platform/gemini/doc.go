// Package gemini implements the agent-class executor on top of the
// Google Gemini API. It turns a queue entry's context snapshot into a
// prompt, calls the model with bounded retries, and returns the response
// text as the execution result.
package gemini
