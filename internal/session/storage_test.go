package session

import (
	"os"
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

	Describe("Put", func() {
		It("should write the file", func() {
			Expect(storage.Put("invoice.pdf", []byte("content"))).To(Succeed())
			Expect(filepath.Join(tmpDir, "invoice.pdf")).To(BeAnExistingFile())
		})

		It("should replace an existing file", func() {
			Expect(storage.Put("po.pdf", []byte("old"))).To(Succeed())
			Expect(storage.Put("po.pdf", []byte("new"))).To(Succeed())
			data, err := storage.Read("po.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("new"))
		})

		It("should not leave temp files behind", func() {
			Expect(storage.Put("po.pdf", []byte("content"))).To(Succeed())
			entries, err := os.ReadDir(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("should keep names inside the directory", func() {
			Expect(storage.Put("../escape.pdf", []byte("content"))).To(Succeed())
			Expect(filepath.Join(tmpDir, "escape.pdf")).To(BeAnExistingFile())
		})
	})

	Describe("Read", func() {
		When("file exists", func() {
			It("should return the file data", func() {
				Expect(storage.Put("po.pdf", []byte("po content"))).To(Succeed())
				data, err := storage.Read("po.pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("po content"))
			})
		})

		When("file does not exist", func() {
			It("returns the error", func() {
				_, err := storage.Read("nonexistent.pdf")
				Expect(err).To(MatchError(ContainSubstring("reading nonexistent.pdf")))
			})
		})
	})

	Describe("Remove", func() {
		When("file exists", func() {
			It("should remove the file from disk", func() {
				Expect(storage.Put("po.pdf", []byte("po content"))).To(Succeed())
				Expect(storage.Remove("po.pdf")).To(Succeed())
				Expect(filepath.Join(tmpDir, "po.pdf")).NotTo(BeAnExistingFile())
			})
		})

		When("file does not exist", func() {
			It("should succeed", func() {
				Expect(storage.Remove("nonexistent.pdf")).To(Succeed())
			})
		})
	})

	Describe("List", func() {
		It("should return stored names only", func() {
			Expect(storage.Put("a.pdf", []byte("a"))).To(Succeed())
			Expect(storage.Put("b.pdf", []byte("b"))).To(Succeed())
			Expect(os.Mkdir(filepath.Join(tmpDir, "nested"), 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(tmpDir, ".upload-123"), []byte("partial"), 0600)).To(Succeed())

			names, err := storage.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ConsistOf("a.pdf", "b.pdf"))
		})
	})

	Describe("NewLocalStorage", func() {
		It("should create a missing directory", func() {
			path := filepath.Join(GinkgoT().TempDir(), "documents")
			_, err := NewLocalStorage(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeADirectory())
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleans user filenames",
		func(input, expected string) {
			Expect(sanitizeFilename(input)).To(Equal(expected))
		},
		Entry("plain", "inv.pdf", "inv.pdf"),
		Entry("spaces and punctuation", "My Invoice (1).PDF", "My_Invoice_1.pdf"),
		Entry("directories", "../../etc/passwd", "passwd"),
		Entry("windows path", `C:\Users\me\po.pdf`, "po.pdf"),
		Entry("empty", "", "document"),
		Entry("only symbols", "@@@.pdf", "document.pdf"),
		Entry("long name", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.pdf",
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.pdf"),
	)
})
