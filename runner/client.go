package runner

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"web/resalegeo/artifact"
	"web/resalegeo/pipeline"
	"web/resalegeo/table"
)

// Client calls a remote FeatureService. It offers the same methods as
// Service, so the HTTP API can sit on either.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a runner without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to runner %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req interface{}, resp interface{}) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return err
	}
	return FromStruct(out, resp)
}

func (c *Client) Enrich(ctx context.Context, rec table.Record) (*pipeline.Enrichment, error) {
	var out pipeline.Enrichment
	if err := c.call(ctx, "Enrich", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Variations(ctx context.Context, rec table.Record) (*VariationsResponse, error) {
	var out VariationsResponse
	if err := c.call(ctx, "Variations", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRuns(ctx context.Context) ([]artifact.RunInfo, error) {
	var out RunsResponse
	if err := c.call(ctx, "ListRuns", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (c *Client) LoadRun(ctx context.Context, id string) (artifact.RunInfo, error) {
	var out artifact.RunInfo
	err := c.call(ctx, "LoadRun", map[string]string{"id": id}, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.call(ctx, "Status", struct{}{}, &out)
	return out, err
}

func (c *Client) Clusters(ctx context.Context, entity string) (*ClusterView, error) {
	var out ClusterView
	if err := c.call(ctx, "Clusters", map[string]string{"entity": entity}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
