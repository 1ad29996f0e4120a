package errors

import "net/http"

// RAG 服务错误码 (service 21)。
var (
	// ErrIngestion 文档提取或分块失败。
	ErrIngestion = Define(ServiceRAG, CategoryRequest, 1).
			Text("Document ingestion failed", "ডকুমেন্ট প্রক্রিয়াকরণ ব্যর্থ").Must()
	ErrUnsupportedFormat = Define(ServiceRAG, CategoryRequest, 2).
				Status(http.StatusUnsupportedMediaType).
				Text("Unsupported document format", "এই ফাইল ফরম্যাট সমর্থিত নয়").Must()
	ErrInvalidFeedback = Define(ServiceRAG, CategoryRequest, 3).
				Text("Invalid feedback type", "মতামতের ধরন সঠিক নয়").Must()
	ErrTooManyFiles = Define(ServiceRAG, CategoryRequest, 4).
			Text("Too many files in one batch", "একসাথে অনেক বেশি ফাইল").Must()
	ErrFileTooLarge = Define(ServiceRAG, CategoryRequest, 5).
			Status(http.StatusRequestEntityTooLarge).
			Text("File too large", "ফাইলটি অনেক বড়").Must()

	ErrDocumentNotFound = Define(ServiceRAG, CategoryResource, 1).
				Text("Document not found", "ডকুমেন্ট পাওয়া যায়নি").Must()
	// ErrChatNotFound 会话不存在或不属于当前用户。
	ErrChatNotFound = Define(ServiceRAG, CategoryResource, 2).
			Text("Chat not found", "চ্যাট পাওয়া যায়নি").Must()
	ErrMessageNotFound = Define(ServiceRAG, CategoryResource, 3).
				Text("Message not found", "বার্তা পাওয়া যায়নি").Must()

	ErrDocumentForbidden = Define(ServiceRAG, CategoryPermission, 1).
				Text("Not authorized to modify this document", "এই ডকুমেন্ট পরিবর্তনের অনুমতি নেই").Must()

	ErrEmbedding = Define(ServiceRAG, CategoryInternal, 1).
			Text("Embedding failed", "এমবেডিং ব্যর্থ").Must()
	ErrRetrieval = Define(ServiceRAG, CategoryInternal, 2).
			Text("Retrieval failed", "তথ্য অনুসন্ধান ব্যর্থ").Must()
	ErrGeneration = Define(ServiceRAG, CategoryInternal, 3).
			Text("Answer generation failed", "উত্তর তৈরি করা যায়নি").Must()
	ErrObjectStorage = Define(ServiceRAG, CategoryInternal, 4).
				Text("Object storage operation failed", "ফাইল সংরক্ষণে ত্রুটি").Must()
	ErrPersistence = Define(ServiceRAG, CategoryDatabase, 1).
			Text("Persistence failed", "ডেটা সংরক্ষণ ব্যর্থ").Must()
	ErrGenerationTimeout = Define(ServiceRAG, CategoryTimeout, 1).
				Text("Answer generation timed out", "উত্তর তৈরিতে সময় শেষ").Must()

	// ErrDimensionMismatch 向量维度与配置不一致，属于配置错误。
	ErrDimensionMismatch = Define(ServiceRAG, CategoryConfig, 1).
				Text("Embedding dimension mismatch", "এমবেডিং মাত্রা মেলেনি").Must()
	ErrEmbedderInit = Define(ServiceRAG, CategoryConfig, 2).
			Text("Embedding model initialization failed", "এমবেডিং মডেল চালু করা যায়নি").Must()
)
