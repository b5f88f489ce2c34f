package session

// Pending holds at most one undelivered payload. Newer payloads replace
// older ones.
type Pending struct {
	payload string
	set     bool
}

func (p *Pending) Set(payload string) {
	p.payload = payload
	p.set = true
}

func (p *Pending) Get() (string, bool) {
	return p.payload, p.set
}

func (p *Pending) Clear() {
	p.payload = ""
	p.set = false
}
