package objstore

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantScheme string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{
			uri:        "s3://my-bucket/jobs/run_date=2024-01-02/part_0001.parquet",
			wantScheme: SchemeS3,
			wantBucket: "my-bucket",
			wantKey:    "jobs/run_date=2024-01-02/part_0001.parquet",
		},
		{
			uri:        "file://bucket/key",
			wantScheme: SchemeFile,
			wantBucket: "bucket",
			wantKey:    "key",
		},
		{
			uri:        "s3://bucket-only/",
			wantScheme: SchemeS3,
			wantBucket: "bucket-only",
			wantKey:    "",
		},
		{
			uri:        "s3://bucket",
			wantScheme: SchemeS3,
			wantBucket: "bucket",
			wantKey:    "",
		},
		{
			uri:     "https://bucket/key",
			wantErr: true,
		},
		{
			uri:     "/local/path",
			wantErr: true,
		},
		{
			uri:     "s3://",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			scheme, bucket, key, err := ParseURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if scheme != tt.wantScheme {
				t.Errorf("scheme = %q, want %q", scheme, tt.wantScheme)
			}
			if bucket != tt.wantBucket {
				t.Errorf("bucket = %q, want %q", bucket, tt.wantBucket)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
		})
	}
}

func TestParseBucketIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "my-bucket", want: "my-bucket"},
		{in: "arn:aws:s3:::my-bucket", want: "my-bucket"},
		{in: "arn:aws:s3:::my-bucket/some/path", want: "my-bucket"},
		{in: "arn:aws-cn:s3:::cn-bucket", want: "cn-bucket"},
		{in: "", wantErr: true},
		{in: "arn:aws:ec2:::thing", wantErr: true},
		{in: "arn:aws:s3:::", wantErr: true},
		{in: "s3://my-bucket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBucketIdentifier(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseBucketIdentifier(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseBucketIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatURIRoundTrip(t *testing.T) {
	uri := FormatURI(SchemeS3, "b", "a/b/c.parquet")
	if uri != "s3://b/a/b/c.parquet" {
		t.Fatalf("FormatURI = %q", uri)
	}
	scheme, bucket, key, err := ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if scheme != SchemeS3 || bucket != "b" || key != "a/b/c.parquet" {
		t.Errorf("got %q %q %q", scheme, bucket, key)
	}
}
