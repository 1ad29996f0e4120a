// Package biz 提供双语 RAG 服务的业务逻辑。
//
//   - DocumentService: 上传、提取、分块、向量化与知识库初始化
//   - Embedder: 懒加载嵌入模型，批量向量化并校验维度
//   - Retriever: 按问题语言过滤的余弦相似度检索
//   - Orchestrator: 组合检索、记忆与生成，回答问题
//   - Memory: 会话与消息的短期、长期记忆
//   - EvaluationService: 回答评估与用户反馈统计
package biz
