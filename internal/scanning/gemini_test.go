package scanning

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gemini", func() {
	When("no API key is configured", func() {
		var scanner *Gemini

		BeforeEach(func() {
			var err error
			scanner, err = NewGemini(context.Background(), GeminiConfig{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports unconfigured", func() {
			Expect(scanner.Configured()).To(BeFalse())
		})

		It("fails fast with ErrMissingCredential", func() {
			_, err := scanner.Scan(context.Background(), []byte("image"), "image/png")
			Expect(err).To(MatchError(ErrMissingCredential))
		})

		It("closes without error", func() {
			Expect(scanner.Close()).To(Succeed())
		})
	})
})
