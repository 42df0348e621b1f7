package responder

// Registry holds the adapters in routing priority order. Nil entries are skipped;
// Fallback must be set.
type Registry struct {
	Memory     Responder
	Knowledge  Responder
	Document   Responder
	LiveMarket Responder
	Fallback   Responder
}

// Chain returns the configured adapters, fallback last.
func (r *Registry) Chain() []Responder {
	out := make([]Responder, 0, 5)
	for _, a := range []Responder{r.Memory, r.Knowledge, r.Document, r.LiveMarket, r.Fallback} {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}
