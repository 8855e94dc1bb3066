package k8s

import (
	"context"
	"fmt"
	"sort"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// JobPhase is the coarse state of a batch Job.
type JobPhase string

// Job phases.
const (
	JobPending   JobPhase = "Pending"
	JobRunning   JobPhase = "Running"
	JobSucceeded JobPhase = "Succeeded"
	JobFailed    JobPhase = "Failed"
)

// Finished reports whether the job reached a terminal phase.
func (p JobPhase) Finished() bool {
	return p == JobSucceeded || p == JobFailed
}

// CreateOrReplaceJob creates job, deleting a previous job of the same name
// and waiting for it to disappear first.
func (c *Client) CreateOrReplaceJob(ctx context.Context, job *batchv1.Job) error {
	jobs := c.clientset.BatchV1().Jobs(job.Namespace)

	_, err := jobs.Get(ctx, job.Name, metav1.GetOptions{})
	switch {
	case err == nil:
		propagation := metav1.DeletePropagationBackground
		if err := jobs.Delete(ctx, job.Name, metav1.DeleteOptions{PropagationPolicy: &propagation}); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete previous job %s: %w", job.Name, err)
		}
		err = wait.PollUntilContextTimeout(ctx, time.Second, time.Minute, true, func(ctx context.Context) (bool, error) {
			_, err := jobs.Get(ctx, job.Name, metav1.GetOptions{})
			return apierrors.IsNotFound(err), nil
		})
		if err != nil {
			return fmt.Errorf("previous job %s still present: %w", job.Name, err)
		}
	case !apierrors.IsNotFound(err):
		return fmt.Errorf("failed to get job %s: %w", job.Name, err)
	}

	if _, err := jobs.Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.Name, err)
	}
	return nil
}

// JobStatus returns the phase of a job.
func (c *Client) JobStatus(ctx context.Context, namespace, name string) (JobPhase, error) {
	job, err := c.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get job %s: %w", name, err)
	}
	return phaseOf(job), nil
}

func phaseOf(job *batchv1.Job) JobPhase {
	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return JobSucceeded
		case batchv1.JobFailed:
			return JobFailed
		}
	}
	if job.Status.Succeeded > 0 {
		return JobSucceeded
	}
	if job.Status.Active > 0 {
		return JobRunning
	}
	return JobPending
}

// JobLogs returns the tail of the logs of the most recent pod of a job.
func (c *Client) JobLogs(ctx context.Context, namespace, name string, tailLines int64) (string, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list pods: %w", err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods found for job %s", name)
	}

	items := pods.Items
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreationTimestamp.Before(&items[j].CreationTimestamp)
	})
	latest := items[len(items)-1]

	req := c.clientset.CoreV1().Pods(namespace).GetLogs(latest.Name, &corev1.PodLogOptions{
		TailLines: &tailLines,
	})
	logs, err := req.DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get pod logs: %w", err)
	}

	return string(logs), nil
}
