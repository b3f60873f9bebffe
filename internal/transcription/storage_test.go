package transcription

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("writes the file under the base directory", func() {
			stored, err := storage.Save("test.json", []byte(`{"total": 1}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal("test.json"))
			Expect(filepath.Join(tmpDir, "test.json")).To(BeAnExistingFile())
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("test.json", []byte("content"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the file data", func() {
				data, err := storage.Get("test.json")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("content"))
			})
		})

		When("the file does not exist", func() {
			It("returns an error", func() {
				_, err := storage.Get("missing.json")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("test.json", []byte("content"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("removes the file", func() {
				Expect(storage.Delete("test.json")).To(Succeed())
				Expect(filepath.Join(tmpDir, "test.json")).NotTo(BeAnExistingFile())
			})
		})

		When("the file does not exist", func() {
			It("returns an error", func() {
				Expect(storage.Delete("missing.json")).NotTo(Succeed())
			})
		})
	})
})
