package transport

// ServerListListener receives complete address lists pushed by a discovery
// source. Every call replaces the previous list.
type ServerListListener interface {
	OnServerListChange(addresses []string)
}

// Discovery is a push source of server addresses.
type Discovery interface {
	AddListener(l ServerListListener)
}

// StaticDiscovery pushes a fixed list to every listener on registration.
type StaticDiscovery struct {
	Addresses []string
}

// AddListener implements Discovery.
func (d StaticDiscovery) AddListener(l ServerListListener) {
	l.OnServerListChange(append([]string(nil), d.Addresses...))
}
