package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

var (
	// Job submit flags
	category    string
	symbol      string
	horizon     int
	lookback    int
	dataSource  string
	modelClass  string
	jobPriority int
	maxCost     float64

	// Job status flags
	followStatus bool

	// Result flags
	resultFile   string
	qualityScore float64

	// Release and fail flags
	releaseReason  string
	releaseDetails string
	failReason     string
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage prediction jobs",
	Long:  `Commands for submitting, tracking, claiming, and settling prediction jobs in the marketplace.`,
}

// jobsSubmitCmd represents the jobs submit command
var jobsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new prediction job",
	Long:  `Submit a new prediction job to the marketplace. The server prices the job and returns the estimate.`,
	RunE:  runJobsSubmit,
}

// jobsStatusCmd represents the jobs status command
var jobsStatusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Get job status",
	Long:  `Retrieve the status of a specific job by its ID. If no ID is provided, lists all jobs visible to the caller.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsStatus,
}

// jobsPendingCmd represents the jobs pending command
var jobsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List the pending queue",
	Long:  `List pending jobs in claim order, with each job's position in the queue.`,
	RunE:  runJobsPending,
}

// jobsClaimCmd represents the jobs claim command
var jobsClaimCmd = &cobra.Command{
	Use:   "claim <job-id>",
	Short: "Claim a pending job",
	Long:  `Claim a pending job as the calling evaluator. Prints the lease receipt on success.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsClaim,
}

// jobsResultCmd represents the jobs result command
var jobsResultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Submit a result for a claimed job",
	Long:  `Submit the prediction result for a job the caller currently holds. The result payload is read from --file, or from stdin when --file is omitted.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResult,
}

// jobsReleaseCmd represents the jobs release command
var jobsReleaseCmd = &cobra.Command{
	Use:   "release <job-id>",
	Short: "Release a claimed job",
	Long:  `Release a processing job back to the pending queue.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRelease,
}

// jobsCancelCmd represents the jobs cancel command
var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending job",
	Long:  `Cancel a pending job and refund its estimate to the owner.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

// jobsFailCmd represents the jobs fail command
var jobsFailCmd = &cobra.Command{
	Use:   "fail <job-id>",
	Short: "Mark a claimed job as failed",
	Long:  `Mark a processing job as permanently failed. Failed jobs cannot be reclaimed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsFail,
}

// jobsPriorityCmd represents the jobs priority command
var jobsPriorityCmd = &cobra.Command{
	Use:   "priority <job-id> <priority>",
	Short: "Change a pending job's priority",
	Long:  `Change the priority of a pending job. Priority ranges from 1 to 10; higher is claimed first.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsPriority,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsSubmitCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsPendingCmd)
	jobsCmd.AddCommand(jobsClaimCmd)
	jobsCmd.AddCommand(jobsResultCmd)
	jobsCmd.AddCommand(jobsReleaseCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsFailCmd)
	jobsCmd.AddCommand(jobsPriorityCmd)

	// Flags for job submit
	jobsSubmitCmd.Flags().StringVar(&category, "category", "", "job category (required: short_term, long_term, custom)")
	jobsSubmitCmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol (e.g., EURUSD)")
	jobsSubmitCmd.Flags().IntVar(&horizon, "horizon", 0, "prediction steps ahead")
	jobsSubmitCmd.Flags().IntVar(&lookback, "lookback", 0, "history bars consumed")
	jobsSubmitCmd.Flags().StringVar(&dataSource, "data-source", "standard", "data source (standard, premium)")
	jobsSubmitCmd.Flags().StringVar(&modelClass, "model-class", "light", "model class (light, heavy)")
	jobsSubmitCmd.Flags().IntVar(&jobPriority, "priority", 0, "queue priority 1-10 (default assigned by server)")
	jobsSubmitCmd.Flags().Float64Var(&maxCost, "max-cost", 0, "reject the job if the estimate exceeds this amount")
	jobsSubmitCmd.MarkFlagRequired("category")

	// Flags for job status
	jobsStatusCmd.Flags().BoolVar(&followStatus, "follow", false, "poll job status every 2 seconds until completion")

	// Flags for result submission
	jobsResultCmd.Flags().StringVar(&resultFile, "file", "", "file containing the result payload as JSON (default stdin)")
	jobsResultCmd.Flags().Float64Var(&qualityScore, "quality", -1, "self-reported quality score in [0,1]")

	// Flags for release and fail
	jobsReleaseCmd.Flags().StringVar(&releaseReason, "reason", "voluntary", "reason recorded in the release history")
	jobsReleaseCmd.Flags().StringVar(&releaseDetails, "details", "", "free-form detail recorded with the release")
	jobsFailCmd.Flags().StringVar(&failReason, "reason", "unspecified", "reason recorded on the failed job")
}

type jobsListResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Count int          `json:"count"`
}

type pendingListResponse struct {
	Jobs  []models.PendingJob `json:"jobs"`
	Count int                 `json:"count"`
}

func runJobsSubmit(cmd *cobra.Command, args []string) error {
	req := models.JobRequest{
		Category:   category,
		Symbol:     symbol,
		Horizon:    horizon,
		Lookback:   lookback,
		DataSource: dataSource,
		ModelClass: modelClass,
		Priority:   jobPriority,
		MaxCost:    maxCost,
	}

	var result models.Job
	if err := postJSON("/jobs", req, &result, http.StatusCreated); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Value")

		table.Append("Job ID", result.ID)
		table.Append("Category", result.Request.Category)
		table.Append("Status", string(result.Status))
		table.Append("Priority", fmt.Sprintf("%d", result.Priority))
		table.Append("Estimated Cost", fmt.Sprintf("%.2f", result.EstimatedCost))
		table.Append("Created At", result.CreatedAt.Format(time.RFC3339))

		table.Render()
		fmt.Printf("\nJob submitted successfully! ID: %s\n", result.ID)
	}

	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	// If no job ID provided, list all jobs
	if len(args) == 0 {
		return listAllJobs()
	}

	jobID := args[0]

	if followStatus {
		fmt.Printf("Following job %s (press Ctrl+C to stop)...\n\n", jobID)
		for {
			result, err := fetchJob(jobID)
			if err != nil {
				return err
			}

			fmt.Print("\033[H\033[2J") // Clear screen
			displayJob(result)

			if result.Status == models.JobStatusCompleted || result.Status == models.JobStatusFailed || result.Status == models.JobStatusCancelled {
				fmt.Println("\n✓ Job reached terminal state")
				break
			}

			time.Sleep(2 * time.Second)
		}
	} else {
		result, err := fetchJob(jobID)
		if err != nil {
			return err
		}
		displayJob(result)
	}

	return nil
}

func listAllJobs() error {
	var result jobsListResponse
	if err := getJSON("/jobs", &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Job ID", "Category", "Symbol", "Status", "Priority", "Estimate", "Claimant", "Created")

		for _, job := range result.Jobs {
			claimant := "-"
			if job.Claim != nil {
				claimant = job.Claim.ClaimantID
			}

			table.Append(
				shortID(job.ID),
				job.Request.Category,
				job.Request.Symbol,
				string(job.Status),
				fmt.Sprintf("%d", job.Priority),
				fmt.Sprintf("%.2f", job.EstimatedCost),
				claimant,
				job.CreatedAt.Format("2006-01-02 15:04"),
			)
		}

		table.Render()
		fmt.Printf("\nTotal jobs: %d\n", result.Count)
	}

	return nil
}

func runJobsPending(cmd *cobra.Command, args []string) error {
	var result pendingListResponse
	if err := getJSON("/jobs/pending", &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Pos", "Job ID", "Category", "Symbol", "Priority", "Estimate", "Waiting")

		now := time.Now()
		for _, entry := range result.Jobs {
			job := entry.Job
			table.Append(
				fmt.Sprintf("%d", entry.Position),
				shortID(job.ID),
				job.Request.Category,
				job.Request.Symbol,
				fmt.Sprintf("%d", job.Priority),
				fmt.Sprintf("%.2f", job.EstimatedCost),
				now.Sub(job.CreatedAt).Round(time.Second).String(),
			)
		}

		table.Render()
		fmt.Printf("\nPending jobs: %d\n", result.Count)
	}

	return nil
}

func runJobsClaim(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	var receipt models.ClaimReceipt
	if err := postJSON(fmt.Sprintf("/jobs/%s/claim", jobID), nil, &receipt, http.StatusOK); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(receipt, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Value")

		table.Append("Job ID", receipt.JobID)
		table.Append("Claimant", receipt.ClaimantID)
		table.Append("Claimed At", receipt.ClaimedAt.Format(time.RFC3339))
		table.Append("Lease Expires", receipt.LeaseExpiresAt.Format(time.RFC3339))
		table.Append("Estimated Cost", fmt.Sprintf("%.2f", receipt.EstimatedCost))

		table.Render()
		fmt.Printf("\nClaimed. Submit a result before %s\n", receipt.LeaseExpiresAt.Format(time.RFC3339))
	}

	return nil
}

func runJobsResult(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	var payload []byte
	var err error
	if resultFile != "" {
		payload, err = os.ReadFile(resultFile)
		if err != nil {
			return fmt.Errorf("failed to read result file: %w", err)
		}
	} else {
		payload, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read result from stdin: %w", err)
		}
	}

	var resultData map[string]interface{}
	if err := json.Unmarshal(payload, &resultData); err != nil {
		return fmt.Errorf("result payload is not valid JSON: %w", err)
	}

	sub := models.ResultSubmission{Result: resultData}
	if qualityScore >= 0 {
		sub.QualityScore = &qualityScore
	}

	var outcome models.SubmissionOutcome
	if err := postJSON(fmt.Sprintf("/jobs/%s/result", jobID), sub, &outcome, http.StatusOK); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Value")

		table.Append("Job ID", outcome.JobID)
		table.Append("Result Hash", outcome.ResultHash)
		table.Append("Quality Score", fmt.Sprintf("%.2f", outcome.QualityScore))
		table.Append("Payment", fmt.Sprintf("%.2f", outcome.Payment))
		table.Append("Processing Time", outcome.ProcessingTime.Round(time.Second).String())
		table.Append("Completed At", outcome.CompletedAt.Format(time.RFC3339))

		table.Render()
		fmt.Printf("\nResult accepted. Payment: %.2f\n", outcome.Payment)
	}

	return nil
}

func runJobsRelease(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	body := map[string]string{
		"reason":  releaseReason,
		"details": releaseDetails,
	}

	var result map[string]string
	if err := postJSON(fmt.Sprintf("/jobs/%s/release", jobID), body, &result, http.StatusOK); err != nil {
		return err
	}

	fmt.Printf("Job %s released back to the pending queue\n", jobID)
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	var result struct {
		Status string  `json:"status"`
		JobID  string  `json:"job_id"`
		Refund float64 `json:"refund"`
	}
	if err := postJSON(fmt.Sprintf("/jobs/%s/cancel", jobID), nil, &result, http.StatusOK); err != nil {
		return err
	}

	fmt.Printf("Job %s cancelled. Refund: %.2f\n", jobID, result.Refund)
	return nil
}

func runJobsFail(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	body := map[string]string{"reason": failReason}

	var result map[string]string
	if err := postJSON(fmt.Sprintf("/jobs/%s/fail", jobID), body, &result, http.StatusOK); err != nil {
		return err
	}

	fmt.Printf("Job %s marked as failed\n", jobID)
	return nil
}

func runJobsPriority(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	priority, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("priority must be an integer: %w", err)
	}

	body := map[string]int{"priority": priority}

	var result map[string]interface{}
	if err := postJSON(fmt.Sprintf("/jobs/%s/priority", jobID), body, &result, http.StatusOK); err != nil {
		return err
	}

	fmt.Printf("Job %s priority set to %d\n", jobID, priority)
	return nil
}

func fetchJob(jobID string) (*models.Job, error) {
	var result models.Job
	if err := getJSON(fmt.Sprintf("/jobs/%s", jobID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func displayJob(result *models.Job) {
	if IsJSONOutput() {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")

	table.Append("Job ID", result.ID)
	table.Append("Owner", result.OwnerID)
	table.Append("Category", result.Request.Category)
	if result.Request.Symbol != "" {
		table.Append("Symbol", result.Request.Symbol)
	}
	table.Append("Status", string(result.Status))
	table.Append("Priority", fmt.Sprintf("%d", result.Priority))
	table.Append("Estimated Cost", fmt.Sprintf("%.2f", result.EstimatedCost))
	if result.ActualCost > 0 {
		table.Append("Actual Cost", fmt.Sprintf("%.2f", result.ActualCost))
	}
	if result.RefundAmount > 0 {
		table.Append("Refund", fmt.Sprintf("%.2f", result.RefundAmount))
	}

	if result.Claim != nil {
		table.Append("Claimant", result.Claim.ClaimantID)
		table.Append("Claimed At", result.Claim.ClaimedAt.Format(time.RFC3339))
		table.Append("Lease Expires", result.Claim.LeaseExpiresAt.Format(time.RFC3339))
	}

	if len(result.ReleaseHistory) > 0 {
		last := result.ReleaseHistory[len(result.ReleaseHistory)-1]
		table.Append("Releases", fmt.Sprintf("%d (last: %s by %s)", len(result.ReleaseHistory), last.Reason, last.ReleasedBy))
	}

	if result.ResultHash != "" {
		table.Append("Result Hash", result.ResultHash)
		table.Append("Quality Score", fmt.Sprintf("%.2f", result.QualityScore))
	}

	table.Append("Created At", result.CreatedAt.Format(time.RFC3339))
	if result.CompletedAt != nil {
		table.Append("Completed At", result.CompletedAt.Format(time.RFC3339))
	}
	if result.CancelledAt != nil {
		table.Append("Cancelled At", result.CancelledAt.Format(time.RFC3339))
	}
	if result.FailedAt != nil {
		table.Append("Failed At", result.FailedAt.Format(time.RFC3339))
		table.Append("Fail Reason", result.FailReason)
	}

	table.Render()
}

// shortID truncates a UUID for table display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// getJSON performs an authenticated GET and decodes the response
func getJSON(path string, out interface{}) error {
	url := GetMasterURL() + path

	httpReq, err := CreateAuthenticatedRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := GetHTTPClient()
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to connect to marketplace API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// postJSON performs an authenticated POST with an optional JSON body and
// decodes the response
func postJSON(path string, in, out interface{}, wantStatus int) error {
	url := GetMasterURL() + path

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBufferString("{}")
	}

	httpReq, err := CreateAuthenticatedRequest("POST", url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := GetHTTPClient()
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to connect to marketplace API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
