package kube

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	networkingv1 "k8s.io/api/networking/v1"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
)

// ReadNetworkPoliciesFromPath reads every policy under policyPath, which may be a single file or a
// directory.  Each file may hold a single policy, a NetworkPolicyList, or several documents
// separated by '---' lines.
func ReadNetworkPoliciesFromPath(policyPath string) ([]*networkingv1.NetworkPolicy, error) {
	var allPolicies []*networkingv1.NetworkPolicy
	err := filepath.Walk(policyPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrapf(err, "unable to walk path %s", path)
		}
		if info.IsDir() {
			log.Tracef("not opening dir %s", path)
			return nil
		}
		if !isYamlFile(path) {
			log.Debugf("skipping non-yaml file %s", path)
			return nil
		}
		log.Debugf("walking path %s", path)
		contents, err := utils.ReadFileBytes(path)
		if err != nil {
			return err
		}
		policies, err := ParseNetworkPolicies(contents)
		if err != nil {
			return errors.WithMessagef(err, "unable to parse policies from %s", path)
		}
		log.Debugf("parsed %d policies from %s", len(policies), path)
		allPolicies = append(allPolicies, policies...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allPolicies, nil
}

// ParseNetworkPolicies splits contents into yaml documents, and parses each as either a
// NetworkPolicyList or a single NetworkPolicy.
func ParseNetworkPolicies(contents []byte) ([]*networkingv1.NetworkPolicy, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(contents)))
	var policies []*networkingv1.NetworkPolicy
	for {
		doc, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "unable to read yaml document")
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}

		policyList, err := utils.ParseYamlStrict[networkingv1.NetworkPolicyList](doc)
		if err == nil && policyList.Kind == "NetworkPolicyList" {
			for i := range policyList.Items {
				policies = append(policies, &policyList.Items[i])
			}
			continue
		}
		log.Tracef("document is not a list of policies: %+v", err)

		policy, err := utils.ParseYamlStrict[networkingv1.NetworkPolicy](doc)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to parse single policy")
		}
		policies = append(policies, policy)
	}
	for _, p := range policies {
		if len(p.Spec.PolicyTypes) == 0 {
			return nil, errors.Errorf("missing spec.policyTypes from network policy %s/%s", p.Namespace, p.Name)
		}
	}
	return policies, nil
}

func isYamlFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}
