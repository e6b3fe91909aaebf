// Package copilot implements the reply copilot: the conversational state
// machine that turns agent answers into a draft reply.
//
// A Copilot is opened on one email. GenerateDraft asks the copilot agent for a
// draft in a fresh session, Chat refines it within the same session, and
// SendReply asks the agent to send it. Agent answers are merged into the
// current draft without ever replacing a present field with an absent one, so
// a partial answer such as {"draft_body": "..."} keeps the subject, tone and
// summary of the previous draft.
//
// The transcript is append-only. Failed calls leave the draft untouched and
// post an error notice on the status hub.
package copilot
