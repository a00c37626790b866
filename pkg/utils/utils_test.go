package utils

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func RunFileTests() {
	Describe("AtomicWriteFile", func() {
		It("creates parent directories and leaves no temp files behind", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "nested", "out.json")
			Expect(AtomicWriteFile(path, []byte("first"), 0644)).To(Succeed())
			Expect(AtomicWriteFile(path, []byte("second"), 0600)).To(Succeed())

			bytes, err := ReadFileBytes(path)
			Expect(err).To(BeNil())
			Expect(string(bytes)).To(Equal("second"))

			info, err := os.Stat(path)
			Expect(err).To(BeNil())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

			entries, err := os.ReadDir(filepath.Dir(path))
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
		})
	})

	Describe("Json and yaml files", func() {
		It("writes json that parses back", func() {
			path := filepath.Join(GinkgoT().TempDir(), "a", "b.json")
			Expect(WriteJsonToFile(sample{Name: "x", Count: 3}, path)).To(Succeed())
			parsed, err := ParseJsonFromFile[sample](path)
			Expect(err).To(BeNil())
			Expect(*parsed).To(Equal(sample{Name: "x", Count: 3}))
		})

		It("rejects unknown yaml fields when strict", func() {
			_, err := ParseYamlStrict[sample]([]byte("name: x\nextra: 1\n"))
			Expect(err).ToNot(BeNil())
			parsed, err := ParseYaml[sample]([]byte("name: x\nextra: 1\n"))
			Expect(err).To(BeNil())
			Expect(parsed.Name).To(Equal("x"))
		})

		It("reports whether a file exists", func() {
			dir := GinkgoT().TempDir()
			Expect(DoesFileExist(filepath.Join(dir, "missing"))).To(BeFalse())
			Expect(WriteFile(filepath.Join(dir, "present"), "hi", 0644)).To(Succeed())
			Expect(DoesFileExist(filepath.Join(dir, "present"))).To(BeTrue())
		})
	})
}
