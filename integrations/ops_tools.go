package integrations

import (
	"context"

	"chat-tools-backend/registry"
	"chat-tools-backend/tool"
)

type workloadArgs struct {
	Namespace string `json:"namespace,omitempty" jsonschema:"description=Namespace; defaults to the configured one"`
	Selector  string `json:"selector,omitempty" jsonschema:"description=Label selector such as app=web"`
}

type podLogsArgs struct {
	Namespace string `json:"namespace,omitempty" jsonschema:"description=Namespace; defaults to the configured one"`
	Pod       string `json:"pod"`
	Container string `json:"container,omitempty"`
	TailLines int64  `json:"tail_lines,omitempty" jsonschema:"description=Number of trailing lines; defaults to 200"`
}

type issueArgs struct {
	Key string `json:"key" jsonschema:"description=Issue key such as PROJ-123"`
}

type searchIssuesArgs struct {
	JQL   string `json:"jql" jsonschema:"description=JQL query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of issues; defaults to 20"`
}

type packageArgs struct {
	Ecosystem string `json:"ecosystem" jsonschema:"enum=npm,enum=pypi,enum=go"`
	Name      string `json:"name" jsonschema:"description=Package or module name"`
}

func (k *Toolkit) addKubernetesTools(set *tool.Set) {
	kube := k.deps.Kube
	set.Add(tool.New("list_pods", "List pods with their phase and restart counts.",
		func(ctx context.Context, a workloadArgs) (any, error) {
			return kube.ListPods(ctx, a.Namespace, a.Selector)
		}))
	set.Add(tool.New("list_deployments", "List deployments with their rollout state.",
		func(ctx context.Context, a workloadArgs) (any, error) {
			return kube.ListDeployments(ctx, a.Namespace, a.Selector)
		}))
	set.Add(tool.New("get_pod_logs", "Read the tail of a pod's logs.",
		func(ctx context.Context, a podLogsArgs) (any, error) {
			return kube.GetPodLogs(ctx, a.Namespace, a.Pod, a.Container, a.TailLines)
		}))
}

func (k *Toolkit) addJiraTools(set *tool.Set) {
	jc := k.deps.Jira
	set.Add(tool.New("get_jira_issue", "Get a Jira issue by key.",
		func(ctx context.Context, a issueArgs) (any, error) {
			return jc.GetIssue(ctx, a.Key)
		}))
	set.Add(tool.New("search_jira_issues", "Search Jira issues with JQL.",
		func(ctx context.Context, a searchIssuesArgs) (any, error) {
			return jc.Search(ctx, a.JQL, a.Limit)
		}))
}

func (k *Toolkit) addRegistryTools(set *tool.Set) {
	rc := k.deps.Registry
	set.Add(tool.New("lookup_package", "Look up the latest published version of a package on npm or PyPI or the Go module proxy.",
		func(ctx context.Context, a packageArgs) (any, error) {
			return rc.Lookup(ctx, registry.Ecosystem(a.Ecosystem), a.Name)
		}))
}
