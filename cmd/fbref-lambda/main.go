package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/tyler180/fbref-backends/internal/app/scrape"
)

func main() {
	log.SetFlags(0)
	lambda.Start(scrape.LambdaEntrypoint)
}
