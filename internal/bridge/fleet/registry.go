// Package fleet holds the configured vehicles and resolves peers to them.
package fleet

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// Identity is the join key used by every bridge component. Address is the
// vehicle host, without a port.
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	SerialNumber string `json:"serialNumber"`
	Address      string `json:"address"`
}

func (id Identity) String() string { return id.Manufacturer + "/" + id.SerialNumber }

// Vehicle is one configured vehicle together with its factsheet data.
type Vehicle struct {
	Identity
	TypeSpecification  vda5050.TypeSpecification
	PhysicalParameters vda5050.PhysicalParameters
}

// Registry is immutable after New and safe for concurrent reads.
type Registry struct {
	vehicles []Vehicle
	bySerial map[string]int
	byHost   map[string]int
}

// New indexes vehicles by serial number and host. Both must be unique.
func New(vehicles []Vehicle) (*Registry, error) {
	r := &Registry{
		vehicles: make([]Vehicle, 0, len(vehicles)),
		bySerial: make(map[string]int, len(vehicles)),
		byHost:   make(map[string]int, len(vehicles)),
	}
	for _, v := range vehicles {
		if v.SerialNumber == "" {
			return nil, fmt.Errorf("vehicle with address %q has no serial number", v.Address)
		}
		if v.Manufacturer == "" {
			return nil, fmt.Errorf("vehicle %s has no manufacturer", v.SerialNumber)
		}
		if _, dup := r.bySerial[v.SerialNumber]; dup {
			return nil, fmt.Errorf("duplicate serial number %s", v.SerialNumber)
		}
		host := normalizeHost(v.Address)
		if host == "" {
			return nil, fmt.Errorf("vehicle %s has no address", v.SerialNumber)
		}
		if other, dup := r.byHost[host]; dup {
			return nil, fmt.Errorf("vehicles %s and %s share address %s", r.vehicles[other].SerialNumber, v.SerialNumber, host)
		}
		v.Address = host
		r.bySerial[v.SerialNumber] = len(r.vehicles)
		r.byHost[host] = len(r.vehicles)
		r.vehicles = append(r.vehicles, v)
	}
	return r, nil
}

// BySerial returns the vehicle with the given serial number.
func (r *Registry) BySerial(serial string) (Vehicle, bool) {
	i, ok := r.bySerial[serial]
	if !ok {
		return Vehicle{}, false
	}
	return r.vehicles[i], true
}

// ByRemoteAddr resolves a peer address ("host:port" or bare host).
func (r *Registry) ByRemoteAddr(addr string) (Vehicle, bool) {
	i, ok := r.byHost[normalizeHost(addr)]
	if !ok {
		return Vehicle{}, false
	}
	return r.vehicles[i], true
}

// Identities returns every identity sorted by serial number.
func (r *Registry) Identities() []Identity {
	out := make([]Identity, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, v.Identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out
}

// Len returns the number of vehicles.
func (r *Registry) Len() int { return len(r.vehicles) }

func normalizeHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return strings.ToLower(strings.Trim(addr, "[]"))
}
