package recipes

import (
	"os"
	"path/filepath"

	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CaseDefinition is a test case as written in a case file.  PolicyFiles are read in addition to
// the inline policies, relative to the case file's directory.
type CaseDefinition struct {
	connectivity.TestCase
	PolicyFiles []string `json:"policyFiles,omitempty"`
}

type CaseFile struct {
	Cases []*CaseDefinition `json:"cases"`
}

// LoadCases reads every case file under path, which may be a file or a directory.  Case ids must be
// unique across all of them.
func LoadCases(path string) ([]*connectivity.TestCase, error) {
	var cases []*connectivity.TestCase
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrapf(err, "unable to walk path %s", filePath)
		}
		if info.IsDir() || !isCaseFile(filePath) {
			return nil
		}
		// directories may also hold the policy files that cases refer to
		if filePath != path && !hasCases(filePath) {
			log.Debugf("skipping %s: no cases", filePath)
			return nil
		}
		loaded, err := LoadCaseFile(filePath)
		if err != nil {
			return err
		}
		cases = append(cases, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]string{}
	for _, testCase := range cases {
		if category, ok := seen[testCase.ID]; ok {
			return nil, errors.Errorf("duplicate case id '%s' (categories %s and %s)", testCase.ID, category, testCase.Category)
		}
		seen[testCase.ID] = testCase.Category
	}
	log.Infof("loaded %d cases from %s", len(cases), path)
	return cases, nil
}

func LoadCaseFile(path string) ([]*connectivity.TestCase, error) {
	caseFile, err := utils.ParseYamlFromFileStrict[CaseFile](path)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to read case file %s", path)
	}

	var cases []*connectivity.TestCase
	for _, definition := range caseFile.Cases {
		testCase := definition.TestCase
		for _, policyFile := range definition.PolicyFiles {
			if !filepath.IsAbs(policyFile) {
				policyFile = filepath.Join(filepath.Dir(path), policyFile)
			}
			policies, err := kube.ReadNetworkPoliciesFromPath(policyFile)
			if err != nil {
				return nil, errors.WithMessagef(err, "case %s", testCase.ID)
			}
			testCase.Policies = append(testCase.Policies, policies...)
		}
		if err := testCase.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "in %s", path)
		}
		if coverage.IsReservedCategory(testCase.Category) {
			return nil, errors.Errorf("case %s in %s: category '%s' is reserved", testCase.ID, path, testCase.Category)
		}
		cases = append(cases, &testCase)
	}
	return cases, nil
}

func hasCases(path string) bool {
	doc, err := utils.ParseYamlFromFile[map[string]interface{}](path)
	if err != nil || doc == nil {
		return false
	}
	_, ok := (*doc)["cases"]
	return ok
}

func isCaseFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
