package services_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/services"
)

var _ = Describe("CVService", func() {
	var (
		ctx      context.Context
		repo     *fakeCVRepository
		embedder *fakeEmbedder
		index    *fakeIndex
		tracer   *recordingTracer
		svc      services.CVService
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newFakeCVRepository()
		embedder = &fakeEmbedder{}
		index = newFakeIndex()
		tracer = &recordingTracer{}
		svc = services.NewCVService(repo, embedder, index, tracer, zap.NewNop())
	})

	It("stores the text and the vector under the same id", func() {
		result, err := svc.Ingest(ctx, "cv_1", "alice.txt", "Alice\nGo developer")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CVID).To(Equal("cv_1"))
		Expect(result.EmbeddingDimension).To(Equal(3))

		doc, err := repo.FindByID(ctx, "cv_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Content).To(Equal("Alice\nGo developer"))

		Expect(index.records).To(HaveKey("cv_1"))
		Expect(index.records["cv_1"].Metadata).To(HaveKeyWithValue("filename", "alice.txt"))
		Expect(tracer.Events()).To(ContainElement("embedding_generation"))
	})

	It("generates an id and keeps a short content preview", func() {
		text := strings.Repeat("x", 800)

		result, err := svc.Ingest(ctx, "", "", text)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CVID).NotTo(BeEmpty())
		Expect(result.Filename).To(Equal(result.CVID))

		meta := index.records[result.CVID].Metadata
		Expect(meta["content"]).To(HaveLen(500))
	})

	It("makes stored CVs loadable for matching", func() {
		_, err := svc.Ingest(ctx, "cv_7", "gina.txt", "Gina")
		Expect(err).NotTo(HaveOccurred())

		cv, err := services.NewRepositoryCVSource(repo).Load(ctx, "cv_7")
		Expect(err).NotTo(HaveOccurred())
		Expect(cv.Filename).To(Equal("gina.txt"))
		Expect(cv.Text).To(Equal("Gina"))
	})

	It("rejects empty text without embedding", func() {
		_, err := svc.Ingest(ctx, "cv_1", "empty.txt", "   ")
		Expect(err).To(MatchError(services.ErrInvalidRequest))
		Expect(embedder.Calls()).To(Equal(0))
	})

	It("propagates embedding failures and stores nothing", func() {
		embedder.failOn = map[int]bool{1: true}

		_, err := svc.Ingest(ctx, "cv_1", "alice.txt", "Alice")
		Expect(err).To(MatchError(services.ErrEmbedding))

		_, err = repo.FindByID(ctx, "cv_1")
		Expect(err).To(HaveOccurred())
	})

	It("deletes both the document and the vector", func() {
		_, err := svc.Ingest(ctx, "cv_1", "alice.txt", "Alice")
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.Delete(ctx, "cv_1")).To(Succeed())
		Expect(index.records).NotTo(HaveKey("cv_1"))

		_, err = services.NewRepositoryCVSource(repo).Load(ctx, "cv_1")
		Expect(err).To(MatchError(services.ErrCVNotFound))
	})

	It("keeps the document when the vector delete fails so the delete can be retried", func() {
		_, err := svc.Ingest(ctx, "cv_1", "alice.txt", "Alice")
		Expect(err).NotTo(HaveOccurred())
		index.deleteFailures = 1

		Expect(svc.Delete(ctx, "cv_1")).To(MatchError(services.ErrStore))
		Expect(index.records).To(HaveKey("cv_1"))
		_, err = repo.FindByID(ctx, "cv_1")
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.Delete(ctx, "cv_1")).To(Succeed())
		Expect(index.records).NotTo(HaveKey("cv_1"))
		_, err = repo.FindByID(ctx, "cv_1")
		Expect(err).To(HaveOccurred())
	})

	It("reports unknown CVs on delete", func() {
		Expect(svc.Delete(ctx, "ghost")).To(MatchError(services.ErrCVNotFound))
	})
})
