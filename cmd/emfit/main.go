// Command emfit draws samples from Gaussian mixtures and fits Gaussian
// mixtures to samples with expectation-maximization.
package main

func main() {
	Execute()
}
