package execution

import (
	"context"
	"fmt"

	"github.com/Isydoria/lighton-workflow-generator/internal/paradigm"
	"github.com/Isydoria/lighton-workflow-generator/internal/sandbox"
)

// DocumentClient is the slice of the document API a single execution
// uses, both from script operations and from the coordinator's own
// upload and cleanup steps.
type DocumentClient interface {
	UploadFile(ctx context.Context, content []byte, filename, collectionType string) (*paradigm.RemoteFile, error)
	WaitUntilReady(ctx context.Context, fileID int64) (string, error)
	GetFile(ctx context.Context, fileID int64) (*paradigm.RemoteFile, error)
	Search(ctx context.Context, query string, fileIDs []int64, tool string) (*paradigm.SearchResult, error)
	AnalyzeWithPolling(ctx context.Context, query string, documentIDs []int64) (string, error)
	ChatCompletion(ctx context.Context, prompt, model string) (string, error)
	AskQuestion(ctx context.Context, fileID int64, question string) (*paradigm.AskResult, error)
	GetFileChunks(ctx context.Context, fileID int64) (*paradigm.ChunkSet, error)
	FilterChunks(ctx context.Context, query string, chunkIDs []string, n int) (*paradigm.ChunkSet, error)
	QueryChunks(ctx context.Context, query, collection string, n int) (*paradigm.ChunkSet, error)
	CleanupUploads(ctx context.Context) int
}

// ClientFactory builds a document client scoped to one execution, so
// upload tracking and cleanup never cross execution boundaries.
type ClientFactory func() DocumentClient

// OperationNames lists the operations scripts may call, in addition to
// the language built-ins. Workflow validation compiles against this set.
func OperationNames() []string {
	return []string{
		"search",
		"analyze",
		"chat",
		"ask_document",
		"get_document",
		"get_document_chunks",
		"wait_until_ready",
		"query_chunks",
		"filter_chunks",
	}
}

// bindOps maps script operation names onto a client instance. fileIDs is
// the attached-file set the run was invoked with; document-scoped
// operations default to it.
func bindOps(client DocumentClient, fileIDs []int64) sandbox.Ops {
	return sandbox.Ops{
		"search": func(ctx context.Context, args []interface{}) (interface{}, error) {
			query, err := argString("search", args, 0, 1)
			if err != nil {
				return nil, err
			}
			res, err := client.Search(ctx, query, fileIDs, "")
			if err != nil {
				return nil, err
			}
			return res.Answer, nil
		},
		"analyze": func(ctx context.Context, args []interface{}) (interface{}, error) {
			query, err := argString("analyze", args, 0, 1)
			if err != nil {
				return nil, err
			}
			return client.AnalyzeWithPolling(ctx, query, fileIDs)
		},
		"chat": func(ctx context.Context, args []interface{}) (interface{}, error) {
			prompt, err := argString("chat", args, 0, 1)
			if err != nil {
				return nil, err
			}
			return client.ChatCompletion(ctx, prompt, "")
		},
		"ask_document": func(ctx context.Context, args []interface{}) (interface{}, error) {
			fileID, err := argFileID("ask_document", args, 0, 2)
			if err != nil {
				return nil, err
			}
			question, err := argString("ask_document", args, 1, 2)
			if err != nil {
				return nil, err
			}
			res, err := client.AskQuestion(ctx, fileID, question)
			if err != nil {
				return nil, err
			}
			return res.Answer, nil
		},
		"get_document": func(ctx context.Context, args []interface{}) (interface{}, error) {
			fileID, err := argFileID("get_document", args, 0, 1)
			if err != nil {
				return nil, err
			}
			f, err := client.GetFile(ctx, fileID)
			if err != nil {
				return nil, err
			}
			return f.Filename, nil
		},
		"get_document_chunks": func(ctx context.Context, args []interface{}) (interface{}, error) {
			fileID, err := argFileID("get_document_chunks", args, 0, 1)
			if err != nil {
				return nil, err
			}
			set, err := client.GetFileChunks(ctx, fileID)
			if err != nil {
				return nil, err
			}
			return chunkTexts(set), nil
		},
		"wait_until_ready": func(ctx context.Context, args []interface{}) (interface{}, error) {
			fileID, err := argFileID("wait_until_ready", args, 0, 1)
			if err != nil {
				return nil, err
			}
			return client.WaitUntilReady(ctx, fileID)
		},
		"query_chunks": func(ctx context.Context, args []interface{}) (interface{}, error) {
			query, err := argString("query_chunks", args, 0, 1)
			if err != nil {
				return nil, err
			}
			set, err := client.QueryChunks(ctx, query, "", 0)
			if err != nil {
				return nil, err
			}
			return chunkTexts(set), nil
		},
		// filter_chunks ranks the attached documents' chunks against a
		// query: gather chunk ids per attached file, then filter.
		"filter_chunks": func(ctx context.Context, args []interface{}) (interface{}, error) {
			query, err := argString("filter_chunks", args, 0, 1)
			if err != nil {
				return nil, err
			}
			var ids []string
			for _, fid := range fileIDs {
				set, err := client.GetFileChunks(ctx, fid)
				if err != nil {
					return nil, err
				}
				for _, ch := range set.Chunks {
					ids = append(ids, ch.UUID)
				}
			}
			if len(ids) == 0 {
				return sandbox.List{}, nil
			}
			set, err := client.FilterChunks(ctx, query, ids, 0)
			if err != nil {
				return nil, err
			}
			return chunkTexts(set), nil
		},
	}
}

func chunkTexts(set *paradigm.ChunkSet) sandbox.List {
	out := make([]interface{}, len(set.Chunks))
	for i, ch := range set.Chunks {
		out[i] = ch.Text
	}
	return sandbox.List{Items: out}
}

func argString(op string, args []interface{}, i, want int) (string, error) {
	if len(args) != want {
		return "", fmt.Errorf("%s expects %d argument(s), got %d", op, want, len(args))
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %T", op, i+1, args[i])
	}
	return s, nil
}

func argFileID(op string, args []interface{}, i, want int) (int64, error) {
	if len(args) != want {
		return 0, fmt.Errorf("%s expects %d argument(s), got %d", op, want, len(args))
	}
	switch v := args[i].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%s: argument %d must be a file id, got %T", op, i+1, args[i])
	}
}
