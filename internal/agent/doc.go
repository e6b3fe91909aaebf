// Package agent talks to the remote conversational agents and normalizes
// their loosely shaped answers.
//
// An agent call returns a Result envelope. Parse turns it into a Payload that
// is exactly one of NoPayload, TextOnly or Structured; every consumer switches
// on Payload.Kind instead of probing for fields:
//
//	switch p := agent.Parse(res); p.Kind() {
//	case agent.Structured:
//		body, _ := p.NonEmpty("draft_body")
//	case agent.TextOnly:
//		fmt.Println(p.Message())
//	case agent.NoPayload:
//		return errors.New(res.ErrorText("request failed"))
//	}
//
// Client is the HTTP Invoker. It authenticates with a bearer API key through
// golang.org/x/oauth2 and records agent metrics and spans.
package agent
