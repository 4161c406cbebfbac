package mailprobe_test

import (
	"context"
	"fmt"
	"log"

	"github.com/optimode/mailprobe"
)

func ExampleVerifier_Verify() {
	v, err := mailprobe.New(mailprobe.Config{
		SMTPHeloDomain: "verifier.example.com",
		ProbeEmail:     "probe@verifier.example.com",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer v.Close()

	res, err := v.Verify(context.Background(), "user@example.com")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Status, res.Score)
}

func ExampleVerifier_VerifyMany() {
	v, err := mailprobe.New(mailprobe.Config{
		SMTPHeloDomain: "verifier.example.com",
		ProbeEmail:     "probe@verifier.example.com",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer v.Close()

	results, err := v.VerifyMany(context.Background(),
		[]string{"a@example.com", "b@example.com"},
		mailprobe.ConcurrencyOptions{Workers: 10},
	)
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range results {
		fmt.Println(r.Email, r.Status)
	}
}
