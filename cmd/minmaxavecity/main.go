package main

import "mrjobs/mapreduce/driver"

func main() {
	driver.Main("minmaxavecity")
}
