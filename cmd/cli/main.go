package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"rag-indexer/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ragctl <command> [args]")
	fmt.Println("  version                  - 显示版本")
	fmt.Println("  config                   - 显示配置概要")
	fmt.Println("  health                   - 服务健康检查")
	fmt.Println("  session                  - 生成新的 session_id")
	fmt.Println("  upload <file>            - 上传并索引文档")
	fmt.Println("  list [limit] [offset]    - 列出会话可见的文档")
	fmt.Println("  get <document_id>        - 查看文档状态")
	fmt.Println("  delete <document_id>     - 删除文档")
	fmt.Println("  reindex <document_id>    - 重新索引文档")
	fmt.Println("  search <query> [top_k]   - 语义检索")
	fmt.Println("  ask <question>           - 检索增强问答")
	fmt.Println("环境变量: RAG_API_URL（默认 http://localhost:8080）, RAG_SESSION_ID")
}

// sessionID 取 RAG_SESSION_ID；未设置时报错提示先执行 session
func sessionID() (string, error) {
	s := os.Getenv("RAG_SESSION_ID")
	if s == "" {
		return "", fmt.Errorf("未设置 RAG_SESSION_ID，可先执行: export RAG_SESSION_ID=$(ragctl session)")
	}
	return s, nil
}

func run(cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "version":
		fmt.Fprintln(out, "rag-indexer cli 1.0.0")
		return nil
	case "config":
		return runConfig(out)
	case "session":
		fmt.Fprintln(out, uuid.NewString())
		return nil
	case "health":
		res, err := health()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, prettyJSON(res))
		return nil
	case "get":
		if len(args) < 1 {
			return fmt.Errorf("Usage: ragctl get <document_id>")
		}
		res, err := getDocument(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, prettyJSON(res))
		return nil
	}

	session, err := sessionID()
	if err != nil {
		return err
	}
	switch cmd {
	case "upload":
		if len(args) < 1 {
			return fmt.Errorf("Usage: ragctl upload <file>")
		}
		res, err := uploadDocument(args[0], session)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v\t%v\tchunks=%v\n", res["id"], res["status"], res["chunk_count"])
	case "list":
		limit, offset := 50, 0
		if len(args) > 0 {
			if limit, err = strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("limit 必须是整数")
			}
		}
		if len(args) > 1 {
			if offset, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("offset 必须是整数")
			}
		}
		res, err := listDocuments(session, limit, offset)
		if err != nil {
			return err
		}
		docs, _ := res["documents"].([]interface{})
		for _, d := range docs {
			doc, _ := d.(map[string]interface{})
			fmt.Fprintf(out, "%v\t%v\t%v\tchunks=%v\n", doc["id"], doc["filename"], doc["status"], doc["chunk_count"])
		}
		fmt.Fprintf(out, "total: %v\n", res["total"])
	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("Usage: ragctl delete <document_id>")
		}
		if err := deleteDocument(args[0], session); err != nil {
			return err
		}
		fmt.Fprintln(out, "deleted")
	case "reindex":
		if len(args) < 1 {
			return fmt.Errorf("Usage: ragctl reindex <document_id>")
		}
		res, err := reindexDocument(args[0], session)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v\t%v\tchunks=%v\n", res["id"], res["status"], res["chunk_count"])
	case "search":
		if len(args) < 1 {
			return fmt.Errorf("Usage: ragctl search <query> [top_k]")
		}
		topK := 0
		if len(args) > 1 {
			if topK, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("top_k 必须是整数")
			}
		}
		res, err := search(args[0], session, topK)
		if err != nil {
			return err
		}
		results, _ := res["results"].([]interface{})
		for i, r := range results {
			hit, _ := r.(map[string]interface{})
			fmt.Fprintf(out, "%d. [%.3f] %v #%v\n   %s\n", i+1, hit["score"], hit["filename"], hit["chunk_index"], preview(fmt.Sprint(hit["text"]), 160))
		}
		fmt.Fprintf(out, "total: %v\n", res["total"])
	case "ask":
		if len(args) < 1 {
			return fmt.Errorf("Usage: ragctl ask <question>")
		}
		res, err := ask(strings.Join(args, " "), session)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res["answer"])
		sources, _ := res["sources"].([]interface{})
		for i, s := range sources {
			src, _ := s.(map[string]interface{})
			fmt.Fprintf(out, "[%d] %v (%.3f)\n", i+1, src["filename"], src["score"])
		}
	default:
		printUsage()
		return fmt.Errorf("未知命令: %s", cmd)
	}
	return nil
}

func runConfig(out io.Writer) error {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	fmt.Fprintf(out, "api.port=%d\n", cfg.API.Port)
	fmt.Fprintf(out, "storage.vector.type=%s\n", cfg.Storage.Vector.Type)
	fmt.Fprintf(out, "storage.metadata.type=%s\n", cfg.Storage.Metadata.Type)
	fmt.Fprintf(out, "model.embedding.model=%s\n", cfg.Model.Embedding.Model)
	fmt.Fprintf(out, "chunking.max_size=%d\n", cfg.Chunking.MaxSize)
	return nil
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
