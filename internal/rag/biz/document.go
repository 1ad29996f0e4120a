package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"github.com/spf13/afero"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/pkg/rag/docutil"
	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/kart-io/bhasha/internal/rag/metrics"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/id"
	"github.com/kart-io/bhasha/pkg/infra/tracing"
	"github.com/kart-io/bhasha/pkg/objectstore"
	"github.com/kart-io/bhasha/pkg/utils/json"
)

const (
	contentPreviewRunes = 500
	chunkPreviewRunes   = 200
	chunkPreviewCount   = 10
)

// Knowledge base statuses.
const (
	StatusInitialized   = "initialized"
	StatusAlreadyExists = "already_exists"
	StatusDeleted       = "deleted"
	StatusNotFound      = "not_found"
)

// IngestionConfig 文档导入配置。
type IngestionConfig struct {
	// MaxFileSize 单个上传文件的字节上限。
	MaxFileSize int64 `json:"max-file-size" mapstructure:"max-file-size"`
	// MaxBatchFiles 批量上传的文件数上限。
	MaxBatchFiles int `json:"max-batch-files" mapstructure:"max-batch-files"`
	// KnowledgeBasePath 内置知识库文件路径。
	KnowledgeBasePath string `json:"knowledge-base-path" mapstructure:"knowledge-base-path"`
	// KnowledgeBaseTitle 内置知识库标题，为空时取文件名。
	KnowledgeBaseTitle string `json:"knowledge-base-title" mapstructure:"knowledge-base-title"`
	// SystemOwner 知识库与目录导入文档的所有者。
	SystemOwner string `json:"system-owner" mapstructure:"system-owner"`
}

// DefaultIngestionConfig 返回默认配置。
func DefaultIngestionConfig() *IngestionConfig {
	return &IngestionConfig{
		MaxFileSize:        10 << 20,
		MaxBatchFiles:      10,
		KnowledgeBasePath:  "data/HSC26-Bangla1st-Paper.pdf",
		KnowledgeBaseTitle: "HSC26 Bangla 1st Paper",
		SystemOwner:        "system",
	}
}

// UploadRequest 上传请求。
type UploadRequest struct {
	OwnerID  string
	FileName string
	Data     []byte
}

// UploadResult 单个文件的导入结果。
type UploadResult struct {
	DocumentID string `json:"document_id"`
	FileID     string `json:"file_id"`
	FileName   string `json:"filename"`
	Language   string `json:"language"`
	ChunkCount int    `json:"chunk_count"`
	WordCount  int    `json:"word_count"`
	PageCount  int    `json:"page_count"`
	FileURL    string `json:"file_url"`
}

// BatchError 批量上传中单个文件的失败原因。
type BatchError struct {
	FileName string `json:"filename"`
	Error    string `json:"error"`
}

// BatchResult 批量上传结果。
type BatchResult struct {
	Results    []*UploadResult `json:"results"`
	Errors     []BatchError    `json:"errors"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
}

// KnowledgeBaseResult 知识库初始化或删除结果。
type KnowledgeBaseResult struct {
	Status        string `json:"status"`
	DocumentID    string `json:"document_id,omitempty"`
	ChunkCount    int    `json:"chunk_count,omitempty"`
	ChunksDeleted int64  `json:"chunks_deleted,omitempty"`
	TotalWords    int    `json:"total_words,omitempty"`
	TotalPages    int    `json:"total_pages,omitempty"`
	Message       string `json:"message,omitempty"`
}

// FileInfo 文档附带的文件信息。
type FileInfo struct {
	ID       string `json:"id"`
	FileName string `json:"filename"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// DocumentSummary 文档列表项。
type DocumentSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Language   string    `json:"language"`
	WordCount  int       `json:"word_count"`
	PageCount  int       `json:"page_count"`
	ChunkCount int64     `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	File       *FileInfo `json:"file"`
}

// ChunkPreview 文档块预览。
type ChunkPreview struct {
	ID             string `json:"id"`
	ContentPreview string `json:"content_preview"`
	ChunkIndex     int    `json:"chunk_index"`
	TokenCount     int    `json:"token_count"`
}

// DocumentDetails 文档详情。
type DocumentDetails struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	ContentPreview string         `json:"content_preview"`
	Language       string         `json:"language"`
	Metadata       model.JSONMap  `json:"metadata"`
	WordCount      int            `json:"word_count"`
	PageCount      int            `json:"page_count"`
	CreatedAt      time.Time      `json:"created_at"`
	File           *FileInfo      `json:"file"`
	ChunksPreview  []ChunkPreview `json:"chunks_preview"`
}

// DocumentStats 知识库统计。
type DocumentStats struct {
	TotalChunks               int64            `json:"total_chunks"`
	TotalDocuments            int64            `json:"total_documents"`
	LanguageDistribution      map[string]int64 `json:"language_distribution"`
	ChunkLanguageDistribution map[string]int64 `json:"chunk_language_distribution"`
}

// DocumentService 负责文档的导入、查询与删除。
type DocumentService struct {
	store    store.Factory
	objects  objectstore.Store
	fs       afero.Fs
	chunker  *Chunker
	embedder *Embedder
	config   *IngestionConfig
	metrics  *metrics.RAGMetrics
}

// NewDocumentService 创建文档服务。fs 用于读取本地知识库文件。
func NewDocumentService(
	factory store.Factory,
	objects objectstore.Store,
	fs afero.Fs,
	chunker *Chunker,
	embedder *Embedder,
	config *IngestionConfig,
) *DocumentService {
	if config == nil {
		config = DefaultIngestionConfig()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &DocumentService{
		store:    factory,
		objects:  objects,
		fs:       fs,
		chunker:  chunker,
		embedder: embedder,
		config:   config,
		metrics:  metrics.GetRAGMetrics(),
	}
}

// prepared 已提取、分块并向量化、尚未写入的文档。
type prepared struct {
	document *model.Document
	chunks   []*model.Chunk
}

// prepare 提取文本、分块并计算向量。没有任何有效文档块时返回 ErrIngestion。
func (s *DocumentService) prepare(ctx context.Context, data []byte, fileName, title string) (*prepared, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "document.prepare")
	defer tracing.EndSpan(span)

	format := docutil.FormatFromName(fileName)
	ext, err := docutil.Extract(data, format, fileName)
	if err != nil {
		if stderrors.Is(err, docutil.ErrUnsupportedFormat) {
			return nil, errors.ErrUnsupportedFormat.WithCause(err)
		}
		return nil, errors.ErrIngestion.WithCause(err)
	}

	meta := map[string]any{
		"file_name":  fileName,
		"file_type":  format,
		"page_count": ext.PageCount,
	}
	drafts, err := s.chunker.Chunk(ext.Text, meta, title)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, errors.ErrIngestion.WithMessage("No content could be extracted from the document")
	}

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EncodeBatch(ctx, texts)
	s.metrics.RecordEmbedding(len(texts), err)
	if err != nil {
		return nil, err
	}

	chunks := make([]*model.Chunk, len(drafts))
	for i, d := range drafts {
		emb, err := json.MarshalString(vectors[i])
		if err != nil {
			return nil, errors.ErrIngestion.WithCause(err)
		}
		chunks[i] = &model.Chunk{
			Content:    d.Content,
			Embedding:  emb,
			TokenCount: textutil.WordCount(d.Content),
			Metadata:   model.JSONMap(d.Metadata),
		}
	}

	full := strings.Join(texts, " ")
	pageCount := ext.PageCount
	if pageCount == 0 {
		pageCount = 1
	}
	tracing.AddSpanAttributes(ctx, tracing.Int("rag.chunks", len(chunks)))

	return &prepared{
		document: &model.Document{
			Title:     title,
			Content:   full,
			Language:  string(textutil.DetectLanguage(full)),
			WordCount: textutil.WordCount(full),
			PageCount: pageCount,
			Metadata:  model.JSONMap(ext.Metadata),
		},
		chunks: chunks,
	}, nil
}

// Upload 导入一个上传的文件：校验、提取、分块、向量化后写入对象存储与数据库。
// 数据库写入失败时删除已上传的对象。
func (s *DocumentService) Upload(ctx context.Context, req *UploadRequest) (result *UploadResult, err error) {
	defer func() {
		docs := 1
		if err != nil {
			docs = 0
		}
		chunks := 0
		if result != nil {
			chunks = result.ChunkCount
		}
		s.metrics.RecordIndexing(docs, chunks, err)
	}()

	if int64(len(req.Data)) > s.config.MaxFileSize {
		return nil, errors.ErrFileTooLarge.WithMessagef("file %s exceeds %d bytes", req.FileName, s.config.MaxFileSize)
	}
	if !docutil.IsSupported(req.FileName) {
		return nil, errors.ErrUnsupportedFormat.WithMessagef(
			"only %s files are supported", strings.Join(docutil.SupportedExtensions, ", "))
	}

	logger.Infow("处理上传文档", "filename", req.FileName, "owner_id", req.OwnerID, "size", len(req.Data))

	p, err := s.prepare(ctx, req.Data, req.FileName, docutil.TitleFromName(req.FileName))
	if err != nil {
		logger.Errorw("文档处理失败", "filename", req.FileName, "error", err.Error())
		return nil, err
	}
	p.document.OwnerID = req.OwnerID

	fileID := id.New()
	objectPath, err := s.objects.Upload(ctx, objectstore.DocumentPath(req.OwnerID, fileID, req.FileName), req.Data)
	if err != nil {
		return nil, errors.ErrObjectStorage.WithCause(err)
	}
	file := &model.File{
		ID:          fileID,
		URL:         s.objects.PublicURL(objectPath),
		Type:        docutil.FormatFromName(req.FileName),
		FileName:    req.FileName,
		FileSize:    int64(len(req.Data)),
		StoragePath: objectPath,
	}

	if err := s.persist(ctx, p, file); err != nil {
		if rmErr := s.objects.Remove(context.WithoutCancel(ctx), objectPath); rmErr != nil {
			logger.Warnw("回滚上传对象失败", "path", objectPath, "error", rmErr.Error())
		}
		return nil, err
	}

	logger.Infow("文档导入完成",
		"document_id", p.document.ID,
		"filename", req.FileName,
		"language", p.document.Language,
		"chunks", len(p.chunks),
	)
	return &UploadResult{
		DocumentID: p.document.ID,
		FileID:     file.ID,
		FileName:   req.FileName,
		Language:   p.document.Language,
		ChunkCount: len(p.chunks),
		WordCount:  p.document.WordCount,
		PageCount:  p.document.PageCount,
		FileURL:    file.URL,
	}, nil
}

// persist 在一个事务中写入文档、文件记录与文档块。
func (s *DocumentService) persist(ctx context.Context, p *prepared, file *model.File) error {
	err := s.store.TX(ctx, func(ctx context.Context, tx store.Factory) error {
		if err := tx.Documents().Create(ctx, p.document); err != nil {
			return err
		}
		var fileID *string
		if file != nil {
			file.DocumentID = p.document.ID
			if err := tx.Files().Create(ctx, file); err != nil {
				return err
			}
			fileID = &file.ID
		}
		_, err := tx.Chunks().InsertMany(ctx, p.document.ID, fileID, p.chunks)
		return err
	})
	if err != nil {
		return errors.ErrPersistence.WithCause(err)
	}
	return nil
}

// BatchUpload 逐个导入文件，单个文件失败不影响其余文件。
func (s *DocumentService) BatchUpload(ctx context.Context, reqs []*UploadRequest) (*BatchResult, error) {
	if len(reqs) > s.config.MaxBatchFiles {
		return nil, errors.ErrTooManyFiles.WithMessagef("at most %d files per batch", s.config.MaxBatchFiles)
	}

	out := &BatchResult{Results: []*UploadResult{}, Errors: []BatchError{}}
	for _, req := range reqs {
		res, err := s.Upload(ctx, req)
		if err != nil {
			out.Errors = append(out.Errors, BatchError{FileName: req.FileName, Error: errorMessage(err)})
			continue
		}
		out.Results = append(out.Results, res)
	}
	out.Successful = len(out.Results)
	out.Failed = len(out.Errors)
	return out, nil
}

// InitializeKnowledgeBase 导入内置知识库，按标题幂等。
func (s *DocumentService) InitializeKnowledgeBase(ctx context.Context) (*KnowledgeBaseResult, error) {
	title := s.config.KnowledgeBaseTitle
	if title == "" {
		title = docutil.TitleFromName(s.config.KnowledgeBasePath)
	}
	return s.IngestLocalFile(ctx, s.config.KnowledgeBasePath, title)
}

// IngestLocalFile 导入本地文件，同名标题的文档已存在时跳过。
// 不写入对象存储，所有者为系统用户。
func (s *DocumentService) IngestLocalFile(ctx context.Context, path, title string) (*KnowledgeBaseResult, error) {
	if title == "" {
		title = docutil.TitleFromName(path)
	}

	existing, err := s.store.Documents().FindByTitle(ctx, title)
	switch {
	case err == nil:
		n, err := s.store.Chunks().CountByDocument(ctx, existing.ID)
		if err != nil {
			return nil, errors.ErrPersistence.WithCause(err)
		}
		logger.Infow("知识库文档已存在", "title", title, "document_id", existing.ID)
		return &KnowledgeBaseResult{Status: StatusAlreadyExists, DocumentID: existing.ID, ChunkCount: int(n)}, nil
	case !errors.IsCode(err, errors.ErrDocumentNotFound.Code):
		return nil, errors.ErrPersistence.WithCause(err)
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, errors.ErrIngestion.WithCause(fmt.Errorf("read %s: %w", path, err))
	}

	p, err := s.prepare(ctx, data, path, title)
	if err == nil {
		p.document.OwnerID = s.config.SystemOwner
		err = s.persist(ctx, p, nil)
	}
	if err != nil {
		s.metrics.RecordIndexing(0, 0, err)
		logger.Errorw("知识库导入失败", "path", path, "error", err.Error())
		return nil, err
	}
	s.metrics.RecordIndexing(1, len(p.chunks), nil)

	logger.Infow("知识库导入完成", "title", title, "chunks", len(p.chunks))
	return &KnowledgeBaseResult{
		Status:     StatusInitialized,
		DocumentID: p.document.ID,
		ChunkCount: len(p.chunks),
		TotalWords: p.document.WordCount,
		TotalPages: p.document.PageCount,
	}, nil
}

// ListDocuments 返回用户的文档，ownerID 为空时返回全部。
func (s *DocumentService) ListDocuments(ctx context.Context, ownerID string) ([]*DocumentSummary, error) {
	docs, err := s.store.Documents().List(ctx, ownerID)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}

	out := make([]*DocumentSummary, 0, len(docs))
	for _, d := range docs {
		n, err := s.store.Chunks().CountByDocument(ctx, d.ID)
		if err != nil {
			return nil, errors.ErrPersistence.WithCause(err)
		}
		out = append(out, &DocumentSummary{
			ID:         d.ID,
			Title:      d.Title,
			Language:   d.Language,
			WordCount:  d.WordCount,
			PageCount:  d.PageCount,
			ChunkCount: n,
			CreatedAt:  d.CreatedAt,
			File:       fileInfo(d.File),
		})
	}
	return out, nil
}

// GetDocumentDetails 返回文档详情与前若干文档块的预览。
func (s *DocumentService) GetDocumentDetails(ctx context.Context, documentID string) (*DocumentDetails, error) {
	doc, err := s.store.Documents().Get(ctx, documentID)
	if err != nil {
		return nil, wrapErrno(errors.ErrPersistence, err)
	}
	chunks, err := s.store.Chunks().FindByDocument(ctx, documentID)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	if len(chunks) > chunkPreviewCount {
		chunks = chunks[:chunkPreviewCount]
	}

	previews := make([]ChunkPreview, len(chunks))
	for i, c := range chunks {
		previews[i] = ChunkPreview{
			ID:             c.ID,
			ContentPreview: preview(c.Content, chunkPreviewRunes),
			ChunkIndex:     c.ChunkIndex,
			TokenCount:     c.TokenCount,
		}
	}

	return &DocumentDetails{
		ID:             doc.ID,
		Title:          doc.Title,
		ContentPreview: preview(doc.Content, contentPreviewRunes),
		Language:       doc.Language,
		Metadata:       doc.Metadata,
		WordCount:      doc.WordCount,
		PageCount:      doc.PageCount,
		CreatedAt:      doc.CreatedAt,
		File:           fileInfo(doc.File),
		ChunksPreview:  previews,
	}, nil
}

// DeleteDocument 删除文档。只有所有者可以删除；对象存储删除失败只记录日志。
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID, ownerID string) error {
	doc, err := s.store.Documents().Get(ctx, documentID)
	if err != nil {
		return wrapErrno(errors.ErrPersistence, err)
	}
	if doc.OwnerID != ownerID {
		return errors.ErrDocumentForbidden
	}

	s.removeObject(ctx, doc.File)
	if err := s.store.Documents().Delete(ctx, documentID); err != nil {
		return wrapErrno(errors.ErrPersistence, err)
	}

	logger.Infow("文档已删除", "document_id", documentID, "owner_id", ownerID)
	return nil
}

// DeleteKnowledgeBase 删除内置知识库文档。
func (s *DocumentService) DeleteKnowledgeBase(ctx context.Context) (*KnowledgeBaseResult, error) {
	title := s.config.KnowledgeBaseTitle
	if title == "" {
		title = docutil.TitleFromName(s.config.KnowledgeBasePath)
	}

	doc, err := s.store.Documents().FindByTitle(ctx, title)
	if errors.IsCode(err, errors.ErrDocumentNotFound.Code) {
		return &KnowledgeBaseResult{Status: StatusNotFound, Message: "Knowledge base does not exist"}, nil
	}
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}

	n, err := s.store.Chunks().CountByDocument(ctx, doc.ID)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	if file, err := s.store.Files().GetByDocument(ctx, doc.ID); err == nil {
		s.removeObject(ctx, file)
	}
	if err := s.store.Documents().Delete(ctx, doc.ID); err != nil {
		return nil, wrapErrno(errors.ErrPersistence, err)
	}

	logger.Infow("知识库已删除", "document_id", doc.ID, "chunks_deleted", n)
	return &KnowledgeBaseResult{
		Status:        StatusDeleted,
		DocumentID:    doc.ID,
		ChunksDeleted: n,
		Message:       "Knowledge base deleted successfully",
	}, nil
}

// Stats 返回知识库统计。
func (s *DocumentService) Stats(ctx context.Context) (*DocumentStats, error) {
	chunks, err := s.store.Chunks().CountAll(ctx)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	docs, err := s.store.Documents().Count(ctx)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	byDoc, err := s.store.Documents().GroupByLanguage(ctx)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	byChunk, err := s.store.Chunks().GroupByLanguage(ctx)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}

	return &DocumentStats{
		TotalChunks:               chunks,
		TotalDocuments:            docs,
		LanguageDistribution:      languageMap(byDoc),
		ChunkLanguageDistribution: languageMap(byChunk),
	}, nil
}

func (s *DocumentService) removeObject(ctx context.Context, file *model.File) {
	if file == nil || file.StoragePath == "" || s.objects == nil {
		return
	}
	if err := s.objects.Remove(ctx, file.StoragePath); err != nil {
		logger.Warnw("删除存储文件失败", "path", file.StoragePath, "error", err.Error())
	}
}

func fileInfo(f *model.File) *FileInfo {
	if f == nil {
		return nil
	}
	return &FileInfo{ID: f.ID, FileName: f.FileName, Type: f.Type, Size: f.FileSize, URL: f.URL}
}

func languageMap(rows []store.LanguageCount) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Language] = r.Count
	}
	return m
}

// preview 截取前 n 个字符，被截断时追加省略号。
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func errorMessage(err error) string {
	if e := errors.FromError(err); e != nil {
		return e.MessageEN
	}
	return err.Error()
}
