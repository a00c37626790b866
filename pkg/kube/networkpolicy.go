package kube

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NetworkPoliciesToTable renders one row per rule, so that a failing case can show what was applied.
func NetworkPoliciesToTable(policies []*networkingv1.NetworkPolicy) string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)
	table.SetAutoWrapText(false)
	table.SetRowLine(true)
	table.SetAutoMergeCells(true)
	table.SetHeader([]string{"Policy", "Target", "Direction", "Peer", "Port/Protocol"})

	for _, policy := range policies {
		table.AppendBulk(policyRows(policy))
	}

	table.Render()
	return tableString.String()
}

func policyRows(policy *networkingv1.NetworkPolicy) [][]string {
	name := fmt.Sprintf("%s/%s", policy.Namespace, policy.Name)
	target := LabelSelectorTableLines(policy.Spec.PodSelector)

	var rows [][]string
	for _, policyType := range policy.Spec.PolicyTypes {
		switch policyType {
		case networkingv1.PolicyTypeIngress:
			if len(policy.Spec.Ingress) == 0 {
				rows = append(rows, []string{name, target, "ingress", "none", "none"})
			}
			for _, rule := range policy.Spec.Ingress {
				rows = append(rows, []string{name, target, "ingress", PrintPeers(rule.From), PrintPorts(rule.Ports)})
			}
		case networkingv1.PolicyTypeEgress:
			if len(policy.Spec.Egress) == 0 {
				rows = append(rows, []string{name, target, "egress", "none", "none"})
			}
			for _, rule := range policy.Spec.Egress {
				rows = append(rows, []string{name, target, "egress", PrintPeers(rule.To), PrintPorts(rule.Ports)})
			}
		}
	}
	return rows
}

func PrintPeers(peers []networkingv1.NetworkPolicyPeer) string {
	if len(peers) == 0 {
		return "all peers"
	}
	var lines []string
	for _, peer := range peers {
		if peer.IPBlock != nil {
			lines = append(lines, fmt.Sprintf("%s except [%s]", peer.IPBlock.CIDR, strings.Join(peer.IPBlock.Except, ",")))
		} else {
			lines = append(lines, printNamespacePodPeer(peer.NamespaceSelector, peer.PodSelector))
		}
	}
	return strings.Join(lines, "\n\n")
}

func printNamespacePodPeer(nsSelector *metav1.LabelSelector, podSelector *metav1.LabelSelector) string {
	ns := "own namespace"
	if nsSelector != nil {
		ns = SerializeLabelSelector(*nsSelector)
	}
	pod := "all pods"
	if podSelector != nil {
		pod = SerializeLabelSelector(*podSelector)
	}
	return fmt.Sprintf("ns: %s\npod: %s", ns, pod)
}

func PrintPorts(ports []networkingv1.NetworkPolicyPort) string {
	if len(ports) == 0 {
		return "all ports, all protocols"
	}
	var lines []string
	for _, pp := range ports {
		protocol := "TCP"
		if pp.Protocol != nil {
			protocol = string(*pp.Protocol)
		}
		switch {
		case pp.Port == nil:
			lines = append(lines, fmt.Sprintf("all ports on %s", protocol))
		case pp.EndPort != nil:
			lines = append(lines, fmt.Sprintf("[%s, %d] on %s", pp.Port.String(), *pp.EndPort, protocol))
		default:
			lines = append(lines, fmt.Sprintf("port %s on %s", pp.Port.String(), protocol))
		}
	}
	return strings.Join(lines, "\n")
}
