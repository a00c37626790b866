package connectivity

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Capability is a family of policy features that an enforcement engine may or may not implement.
type Capability string

const (
	CapabilityIngress           Capability = "ingress"
	CapabilityEgress            Capability = "egress"
	CapabilityNamespaceSelector Capability = "namespace-selector"
	CapabilityPortFilter        Capability = "port-filter"
	CapabilityIPBlock           Capability = "ip-block"
)

var AllCapabilities = []Capability{
	CapabilityIngress,
	CapabilityEgress,
	CapabilityNamespaceSelector,
	CapabilityPortFilter,
	CapabilityIPBlock,
}

type Capabilities map[Capability]bool

func allCapabilities() Capabilities {
	capabilities := Capabilities{}
	for _, c := range AllCapabilities {
		capabilities[c] = true
	}
	return capabilities
}

// cniCapabilities: flannel accepts policy objects but enforces none of them.
var cniCapabilities = map[string]func() Capabilities{
	"flannel": func() Capabilities { return Capabilities{} },
	"calico":  allCapabilities,
	"cilium":  allCapabilities,
	"antrea":  allCapabilities,
	"kindnet": allCapabilities,
}

// CapabilitiesForCNI returns what the named plugin enforces, with overrides applied on top.
// An empty cni is taken to enforce everything.
func CapabilitiesForCNI(cni string, overrides map[string]bool) (Capabilities, error) {
	var capabilities Capabilities
	if cni == "" {
		capabilities = allCapabilities()
	} else if builder, ok := cniCapabilities[strings.ToLower(cni)]; ok {
		capabilities = builder()
	} else {
		return nil, errors.Errorf("unknown cni '%s'; set capabilities explicitly or use one of %v", cni, KnownCNIs())
	}
	for name, enabled := range overrides {
		capability, err := ParseCapability(name)
		if err != nil {
			return nil, err
		}
		capabilities[capability] = enabled
	}
	return capabilities, nil
}

func KnownCNIs() []string {
	var names []string
	for name := range cniCapabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ParseCapability(s string) (Capability, error) {
	for _, c := range AllCapabilities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", errors.Errorf("unknown capability '%s'", s)
}

// Missing lists the required capabilities that aren't available, in the order given.
func (c Capabilities) Missing(required []Capability) []Capability {
	var missing []Capability
	for _, r := range required {
		if !c[r] {
			missing = append(missing, r)
		}
	}
	return missing
}
