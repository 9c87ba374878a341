// Package common holds helpers shared by Store implementations.
package common

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/gorilla/schema"
)

// ParseStoreArgs decodes the query arguments of store URL |ep| into |args|,
// which is a pointer to a struct of the store's supported arguments.
// Unknown arguments are an error. Durations are parsed with time.ParseDuration.
func ParseStoreArgs(ep *url.URL, args interface{}) error {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)
	decoder.RegisterConverter(time.Duration(0), convertDuration)

	if q, err := url.ParseQuery(ep.RawQuery); err != nil {
		return err
	} else if err = decoder.Decode(args, q); err != nil {
		return fmt.Errorf("parsing store URL arguments: %s", err)
	}
	return nil
}

// BucketAndPrefix splits a bucket-addressed URL like "s3://bucket/path/to/"
// into its bucket and the path prefix within the bucket, sans leading slash.
func BucketAndPrefix(ep *url.URL) (bucket, prefix string, err error) {
	if ep.Host == "" {
		return "", "", fmt.Errorf("store URL %s is missing a bucket", ep.Redacted())
	}
	return ep.Host, strings.TrimPrefix(ep.Path, "/"), nil
}

func convertDuration(s string) reflect.Value {
	if d, err := time.ParseDuration(s); err == nil {
		return reflect.ValueOf(d)
	}
	return reflect.Value{} // Invalid: the decoder reports a conversion error.
}
