// Package store 提供 RAG 服务的数据存储层。
//
// 该包定义了文档、文档块、文件、会话、消息与评估的存储接口，
// 并基于 GORM 实现。文档块检索采用全量候选 + 精确余弦相似度，
// 不依赖向量索引。
package store
