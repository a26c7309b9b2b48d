package apiclient_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/storefront-mobile/apiclient"
	"github.com/storefront-mobile/apiclient/apitest"
	"github.com/storefront-mobile/apiclient/tokenstore"
)

func ExampleNew() {
	client, err := apiclient.New().
		WithBaseURL("https://api.storefront.example/v1").
		WithTokenStore(tokenstore.NewMemory()).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close()

	fmt.Println(client.BaseURL())
	// Output: https://api.storefront.example/v1
}

func ExampleClient_Get() {
	api := apitest.NewServer()
	defer api.Close()
	api.AddUser("alice@example.com", "correct-horse")

	client, err := apiclient.New().WithBaseURL(api.URL).Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close()

	ctx := context.Background()
	if _, err := client.Login(ctx, apiclient.Credentials{Email: "alice@example.com", Password: "correct-horse"}); err != nil {
		fmt.Println(err)
		return
	}

	// The token expires server side; the call refreshes it and retries once.
	api.ExpireAll()

	var cart struct {
		Path string `json:"path"`
	}
	if err := client.Get(ctx, "/cart", &cart); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(cart.Path, api.RefreshCalls())
	// Output: /cart 1
}

func ExampleAPIError() {
	api := apitest.NewServer()
	defer api.Close()

	client, err := apiclient.New().WithBaseURL(api.URL).Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close()

	_, err = client.Call(context.Background(), "/custom", nil)

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		fmt.Println(apiErr.Status, apiErr.Message)
	}
	// Output: 400 Custom error
}
