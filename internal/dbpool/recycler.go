package dbpool

// expired reports whether h has outlived RecycleAge.
//
// Age is only checked on release, so a handle past its age is never taken
// away from a caller; it is replaced when it next comes back.
func (p *Pool) expired(h *Handle) bool {
	if p.cfg.RecycleAge < 0 {
		return false
	}
	return h.age(p.now()) > p.cfg.RecycleAge
}
