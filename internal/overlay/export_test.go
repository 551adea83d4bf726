package overlay

func (h *Headless) boundKey() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storageKey
}
