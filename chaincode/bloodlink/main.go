package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

func main() {
	chaincode, err := contractapi.NewChaincode(new(EligibilityContract))
	if err != nil {
		log.Panicf("Error creating bloodlink eligibility chaincode: %v", err)
	}
	if err := chaincode.Start(); err != nil {
		log.Panicf("Error starting bloodlink eligibility chaincode: %v", err)
	}
}
