package internal

import (
	"fmt"
	"os"

	"github.com/DreamCats/docrag/internal/config"
)

// LoadConfig 从指定路径读取并解析 YAML 配置文件，路径为空时使用默认位置。
// 返回填充后的 *config.Config 或解析错误。
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// PrintConfigExample 向 stderr 打印一份 YAML 配置示例。
func PrintConfigExample() {
	configPath, err := config.DefaultPath()
	if err != nil {
		configPath = "~/.docrag/config/docrag.yaml"
	}

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s:

# Remote embedding providers, tried in order. Without urls docrag
# runs on deterministic local vectors only.
embedding:
  providers: [proxy, huggingface]
  proxy:
    url: http://localhost:9000/embed
  huggingface:
    url: https://api-inference.huggingface.co/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2
    api_key: hf_xxx
  batch_size: 16
  retries: 2
  backoff: 500ms
  fallback_dim: 8

chunking:
  size: 2000
  overlap: 200

# database:
#   path: ~/.docrag/data/docrag.db

search:
  default_top_k: 5
  # text_index_dir: ~/.docrag/data/text.bleve
  # keyword_weight: 0.3

review:
  # llm_url: http://localhost:9001/complete

Every value can also come from the environment, e.g. GEMINI_PROXY_URL,
HUGGINGFACE_API_URL, HUGGINGFACE_API_KEY, CHUNK_SIZE or DATABASE_PATH.
A .env file in the working directory is loaded first.

Usage:
  1. Create the config file (or export the variables)
  2. Ingest: docrag ingest ./docs
  3. Search: docrag search "your query"
`, configPath)
}
