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
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("INGEST_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")
	if token := os.Getenv("INGEST_API_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// apiError 从错误响应体中取出 error 字段
func apiError(resp *resty.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("%s %s: %d %s", resp.Request.Method, resp.Request.URL, resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("%s %s: %d %s", resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.String())
}

func getJSON(path string, out interface{}) error {
	resp, err := newClient().R().
		SetResult(out).
		Get(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func getStatus() (*queueStatus, error) {
	var out queueStatus
	if err := getJSON("/api/ingest/queue", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func getJob(jobID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := getJSON("/api/ingest/jobs/"+jobID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getSubmission(submissionID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := getJSON("/api/ingest/submissions/"+submissionID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getResources(limit int) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := getJSON("/api/system/resources?limit="+strconv.Itoa(limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getHealth() (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	resp, err := newClient().R().SetResult(&out).Get("/api/health")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", apiError(resp)
	}
	return out.Status, nil
}

func cancelJob(jobID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Delete("/api/ingest/jobs/" + jobID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError(resp)
	}
	return out, nil
}

// submitFiles 以 multipart 上传本地文件
func submitFiles(paths []string, mode string, boost int) (*submitResult, error) {
	req := newClient().R()
	for _, p := range paths {
		req.SetFile("files", p)
	}
	fields := map[string]string{}
	if mode != "" {
		fields["mode"] = mode
	}
	if boost != 0 {
		fields["priority_boost"] = strconv.Itoa(boost)
	}
	var out submitResult
	resp, err := req.
		SetMultipartFormData(fields).
		SetResult(&out).
		Post("/api/ingest/jobs")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return nil, apiError(resp)
	}
	return &out, nil
}
