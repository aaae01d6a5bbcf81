// Package llm normalizes chat completion calls across LLM providers.
//
// Each provider is an Adapter that builds its own wire request from a
// position-ordered history plus one new user utterance, performs a single
// exchange, and parses or classifies the result. Callers only ever see plain
// reply text or an *Error carrying one of a small set of ErrorKinds.
package llm
