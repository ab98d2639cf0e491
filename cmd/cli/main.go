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
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"ingest-scheduler/pkg/config"
)

const version = "0.1.0"

// queueStatus GET /api/ingest/queue 响应中 CLI 需要的字段
type queueStatus struct {
	RunningCount    int    `json:"running_count"`
	MaxConcurrent   int    `json:"max_concurrent"`
	QueuedCount     int    `json:"queued_count"`
	Paused          bool   `json:"paused"`
	SystemLoadLevel string `json:"system_load_level"`
	Message         string `json:"message"`
	TopQueueEntries []struct {
		JobID                string  `json:"job_id"`
		BatchID              string  `json:"batch_id"`
		Priority             int     `json:"priority"`
		Position             int     `json:"position"`
		Members              int     `json:"members"`
		EstimatedWaitSeconds float64 `json:"estimated_wait_seconds"`
	} `json:"top_queue_entries"`
}

type submitResult struct {
	SubmissionID string   `json:"submission_id"`
	JobID        string   `json:"job_id"`
	JobIDs       []string `json:"job_ids"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	cmd := args[0]
	args = args[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "ingest-scheduler cli %s\n", version)
	case "health":
		status, err := getHealth()
		if err != nil {
			fmt.Fprintf(stderr, "健康检查失败: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, status)
	case "config":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		return runConfig(path, stdout, stderr)
	case "status":
		return runStatus(stdout, stderr)
	case "submit":
		return runSubmit(args, stdout, stderr)
	case "job":
		if len(args) < 1 {
			fmt.Fprintf(stderr, "Usage: ingestctl job <job_id>\n")
			return 1
		}
		return printResult(stdout, stderr, "查询 job 失败")(getJob(args[0]))
	case "submission":
		if len(args) < 1 {
			fmt.Fprintf(stderr, "Usage: ingestctl submission <submission_id>\n")
			return 1
		}
		return printResult(stdout, stderr, "查询提交失败")(getSubmission(args[0]))
	case "cancel":
		if len(args) < 1 {
			fmt.Fprintf(stderr, "Usage: ingestctl cancel <job_id>\n")
			return 1
		}
		return printResult(stdout, stderr, "取消失败")(cancelJob(args[0]))
	case "resources":
		return printResult(stdout, stderr, "查询资源失败")(getResources(10))
	default:
		printUsage(stderr)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ingestctl <command> [args]")
	fmt.Fprintln(w, "  version                  - 显示版本")
	fmt.Fprintln(w, "  health                   - 健康检查")
	fmt.Fprintln(w, "  config [path]            - 显示生效配置概要")
	fmt.Fprintln(w, "  status                   - 队列与并发状态")
	fmt.Fprintln(w, "  submit [-mode m] [-boost n] <file>... - 上传文件并提交")
	fmt.Fprintln(w, "  job <job_id>             - 查询 job 状态")
	fmt.Fprintln(w, "  submission <id>          - 查询一次提交产生的全部 job")
	fmt.Fprintln(w, "  cancel <job_id>          - 取消排队中或运行中的 job")
	fmt.Fprintln(w, "  resources                - 当前主机资源与最近历史")
	fmt.Fprintln(w, "环境变量: INGEST_API_URL（默认 http://localhost:8080）, INGEST_API_TOKEN")
}

func printResult(stdout, stderr io.Writer, what string) func(map[string]interface{}, error) int {
	return func(out map[string]interface{}, err error) int {
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", what, err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return 0
	}
}

func runConfig(path string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "api.port=%d\n", cfg.API.Port)
	fmt.Fprintf(stdout, "scheduler.max_concurrent_jobs=%d\n", cfg.Scheduler.MaxConcurrentJobs)
	fmt.Fprintf(stdout, "monitor.interval=%s\n", cfg.Monitor.Interval)
	fmt.Fprintf(stdout, "jobtrack.type=%s\n", cfg.JobTrack.Type)
	fmt.Fprintf(stdout, "executor.type=%s\n", cfg.Executor.Type)
	fmt.Fprintf(stdout, "storage.object.type=%s\n", cfg.Storage.Object.Type)
	return 0
}

func runStatus(stdout, stderr io.Writer) int {
	st, err := getStatus()
	if err != nil {
		fmt.Fprintf(stderr, "查询队列失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, st.Message)
	fmt.Fprintf(stdout, "load=%s paused=%v\n", st.SystemLoadLevel, st.Paused)
	if len(st.TopQueueEntries) == 0 {
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tJOB\tBATCH\tPRIORITY\tMEMBERS\tWAIT(s)")
	for _, e := range st.TopQueueEntries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%.0f\n", e.Position, e.JobID, e.BatchID, e.Priority, e.Members, e.EstimatedWaitSeconds)
	}
	_ = tw.Flush()
	return 0
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", "", "处理模式: standard | realtime | background")
	boost := fs.Int("boost", 0, "额外优先级加成")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintf(stderr, "Usage: ingestctl submit [-mode m] [-boost n] <file>...\n")
		return 1
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			fmt.Fprintf(stderr, "无法读取文件: %v\n", err)
			return 1
		}
	}
	res, err := submitFiles(files, *mode, *boost)
	if err != nil {
		fmt.Fprintf(stderr, "提交失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "submission_id=%s\n", res.SubmissionID)
	for _, id := range res.JobIDs {
		fmt.Fprintf(stdout, "job_id=%s\n", id)
	}
	return 0
}
