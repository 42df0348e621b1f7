// Package events defines the routing event and the publishers that emit it.
package events

// RouteDecidedEvent is emitted after a query has been answered and persisted.
type RouteDecidedEvent struct {
	RecordID  int64  `json:"recordId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Query     string `json:"query"`
	Responder string `json:"responder"`
	HintKind  string `json:"hintKind,omitempty"`
	HintValue string `json:"hintValue,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
	Timestamp string `json:"timestamp"`
}
