package app

// EventType identifies different application events.
type EventType int

const (
	// EventScanComplete carries a scan.Result.
	EventScanComplete EventType = iota
	// EventPricesRefreshed carries the value.Snapshot that was applied.
	EventPricesRefreshed
	// EventPriceRefreshFailed carries the refresh error.
	EventPriceRefreshFailed
)

func (e EventType) String() string {
	switch e {
	case EventScanComplete:
		return "scan_complete"
	case EventPricesRefreshed:
		return "prices_refreshed"
	case EventPriceRefreshFailed:
		return "price_refresh_failed"
	}
	return "unknown"
}

// EventListener is called when an event occurs.
type EventListener func(data any)

// On registers an event listener for the specified event type.
func (a *App) On(event EventType, listener EventListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners[event] = append(a.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type. Listeners run
// on the emitting goroutine.
func (a *App) Emit(event EventType, data any) {
	a.mu.RLock()
	listeners := a.listeners[event]
	a.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}
