package kube

import (
	"fmt"
	"sort"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func IsLabelSelectorEmpty(l metav1.LabelSelector) bool {
	return len(l.MatchLabels) == 0 && len(l.MatchExpressions) == 0
}

// SerializeLabelSelector renders a selector on one line, labels first in key order, then
// expressions in their given order.
func SerializeLabelSelector(ls metav1.LabelSelector) string {
	if IsLabelSelectorEmpty(ls) {
		return "{}"
	}
	var terms []string
	for _, key := range sortedKeys(ls.MatchLabels) {
		terms = append(terms, fmt.Sprintf("%s: %s", key, ls.MatchLabels[key]))
	}
	for _, exp := range ls.MatchExpressions {
		terms = append(terms, fmt.Sprintf("%s %s [%s]", exp.Key, exp.Operator, strings.Join(exp.Values, ",")))
	}
	return "{" + strings.Join(terms, ", ") + "}"
}

// LabelSelectorTableLines renders a pod selector for a table cell.
func LabelSelectorTableLines(selector metav1.LabelSelector) string {
	if IsLabelSelectorEmpty(selector) {
		return "all pods"
	}
	var lines []string
	if len(selector.MatchLabels) > 0 {
		lines = append(lines, "Match labels:")
		for _, key := range sortedKeys(selector.MatchLabels) {
			lines = append(lines, fmt.Sprintf("  %s: %s", key, selector.MatchLabels[key]))
		}
	}
	if len(selector.MatchExpressions) > 0 {
		lines = append(lines, "Match expressions:")
		for _, exp := range selector.MatchExpressions {
			lines = append(lines, fmt.Sprintf("  %s %s %+v", exp.Key, exp.Operator, exp.Values))
		}
	}
	return strings.Join(lines, "\n")
}

// LabelsString renders a label map as "k1=v1,k2=v2" in key order.
func LabelsString(labels map[string]string) string {
	var pairs []string
	for _, key := range sortedKeys(labels) {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, labels[key]))
	}
	return strings.Join(pairs, ",")
}

func sortedKeys(m map[string]string) []string {
	var keys []string
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
