package client

import (
	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/submission"
)

var (
	_ submission.BlobStore = (*SupabaseStorage)(nil)
	_ submission.BlobStore = (*FSBlobStore)(nil)
	_ auth.Verifier        = (*IdentityClient)(nil)
)
