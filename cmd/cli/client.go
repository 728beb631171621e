// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("RAG_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(120 * time.Second)
}

// apiError 服务端 {error, details} 响应
type apiError struct {
	Status  int
	Message string                 `json:"error"`
	Details map[string]interface{} `json:"details"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	e := &apiError{Status: resp.StatusCode()}
	if jerr := json.Unmarshal(resp.Body(), e); jerr != nil || e.Message == "" {
		e.Message = resp.String()
	}
	return e
}

func uploadDocument(path, sessionID string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	resp, err := newClient().R().
		SetFileReader("file", filepath.Base(path), bytesReader(data)).
		SetFormData(map[string]string{"session_id": sessionID}).
		SetResult(&out).
		Post("/api/v1/rag/documents")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func listDocuments(sessionID string, limit, offset int) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetQueryParams(map[string]string{
			"session_id": sessionID,
			"limit":      strconv.Itoa(limit),
			"offset":     strconv.Itoa(offset),
		}).
		SetResult(&out).
		Get("/api/v1/rag/documents")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func getDocument(id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/v1/rag/documents/" + id)
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func deleteDocument(id, sessionID string) error {
	resp, err := newClient().R().
		SetQueryParam("session_id", sessionID).
		Delete("/api/v1/rag/documents/" + id)
	return check(resp, err)
}

func reindexDocument(id, sessionID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetQueryParam("session_id", sessionID).
		SetResult(&out).
		Post("/api/v1/rag/documents/" + id + "/reindex")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func search(query, sessionID string, topK int) (map[string]interface{}, error) {
	body := map[string]interface{}{"query": query, "session_id": sessionID}
	if topK > 0 {
		body["top_k"] = topK
	}
	var out map[string]interface{}
	resp, err := newClient().R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/api/v1/rag/search")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func ask(question, sessionID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{"question": question, "session_id": sessionID}).
		SetResult(&out).
		Post("/api/v1/rag/query")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func health() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/health")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
